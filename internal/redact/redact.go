// Package redact scrubs credential-shaped tokens from text before it
// reaches the decision trace, the audit ledger, or a notification channel.
// Prompt excerpts and audit payloads pass through here; raw secrets must
// never be persisted.
package redact

import (
	"regexp"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

var sensitivePatterns = []*regexp.Regexp{
	// AWS
	regexp.MustCompile(`(?i)(aws_access_key_id|aws_secret_access_key|aws_session_token)\s*[=:]\s*['"]?[A-Za-z0-9/+=]{20,}['"]?`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),

	// GitHub
	regexp.MustCompile(`(?i)(github_token|gh_token|github_pat)\s*[=:]\s*['"]?[A-Za-z0-9_-]{30,}['"]?`),
	regexp.MustCompile(`gh[opusr]_[A-Za-z0-9]{36}`),

	// Generic API keys
	regexp.MustCompile(`(?i)(api_key|apikey|api-key|secret_key|secretkey|secret-key|access_token|auth_token)\s*[=:]\s*['"]?[A-Za-z0-9_-]{16,}['"]?`),

	// Private keys
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`),

	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_-]{20,}`),

	// Basic auth in URLs
	regexp.MustCompile(`https?://[^:]+:[^@]+@`),

	// Slack tokens
	regexp.MustCompile(`xox[baprs]-[0-9]{10,13}-[0-9]{10,13}[a-zA-Z0-9-]*`),
	regexp.MustCompile(`xapp-[0-9]-[A-Z0-9]+-[0-9]{10,13}-[a-f0-9]{32,}`),

	// Telegram bot tokens
	regexp.MustCompile(`\b[0-9]{8,10}:[A-Za-z0-9_-]{30,}`),

	// Model provider keys
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),

	// Stripe
	regexp.MustCompile(`[sr]k_live_[0-9a-zA-Z]{24}`),

	// password=... assignments
	regexp.MustCompile(`(?i)(password|passwd|pwd|secret)\s*[=:]\s*['"]?[^\s'"]{8,}['"]?`),
}

// sensitiveEnvNames match by substring against the upper-cased variable
// name, so MY_API_KEY and API_KEY_2 are both caught.
var sensitiveEnvNames = []string{
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_SESSION_TOKEN",
	"GITHUB_TOKEN",
	"GH_TOKEN",
	"GITHUB_PAT",
	"API_KEY",
	"SECRET_KEY",
	"AUTH_TOKEN",
	"ACCESS_TOKEN",
	"PASSWORD",
	"PASSWD",
	"DATABASE_URL",
	"REDIS_URL",
	"MONGO_URL",
	"STRIPE_SECRET_KEY",
	"SLACK_TOKEN",
	"TELEGRAM_BOT_TOKEN",
	"ANTHROPIC_API_KEY",
	"OPENAI_API_KEY",
	"NPM_TOKEN",
	"PYPI_TOKEN",
}

// Redact replaces every credential-shaped token in the input.
func Redact(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, redactedPlaceholder)
	}
	return result
}

// RedactEnvVars masks the values of sensitive NAME=value pairs.
func RedactEnvVars(envVars []string) []string {
	result := make([]string, 0, len(envVars))
	for _, env := range envVars {
		name, _, ok := strings.Cut(env, "=")
		if !ok {
			result = append(result, env)
			continue
		}
		if sensitiveName(strings.ToUpper(name)) {
			result = append(result, name+"="+redactedPlaceholder)
		} else {
			result = append(result, env)
		}
	}
	return result
}

func sensitiveName(name string) bool {
	for _, sensitive := range sensitiveEnvNames {
		if strings.Contains(name, sensitive) {
			return true
		}
	}
	return false
}

// RedactArgs redacts each element of a command-line argument vector.
func RedactArgs(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = Redact(arg)
	}
	return result
}

// RedactMap redacts every string value in a payload, recursing into nested
// maps and slices. Used on audit payloads before they are persisted.
func RedactMap(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return Redact(val)
	case map[string]any:
		return RedactMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(item)
		}
		return out
	default:
		return v
	}
}
