package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalYAML = `
config_version: 1
prompts:
  timeout_seconds: 300
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMinimalValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ConfigVersion != 1 {
		t.Errorf("config_version = %d, want 1", cfg.ConfigVersion)
	}
	if cfg.Prompts.TimeoutSeconds != 300 {
		t.Errorf("timeout_seconds = %d, want 300", cfg.Prompts.TimeoutSeconds)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "this is not valid yaml: [[["))
	if err == nil {
		t.Fatal("invalid yaml must fail")
	}
}

func TestAutoApproveDefaultRejected(t *testing.T) {
	bad := `
config_version: 1
prompts:
  timeout_seconds: 300
  yes_no_safe_default: "y"
`
	_, err := Load(writeConfig(t, bad))
	if err == nil {
		t.Fatal("auto-approve default must be rejected")
	}
	if !strings.Contains(err.Error(), "auto-approv") {
		t.Errorf("error should name auto-approval, got: %v", err)
	}
}

func TestTimeoutBounds(t *testing.T) {
	bad := `
config_version: 1
prompts:
  timeout_seconds: 10
`
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatal("timeout below floor must be rejected")
	}
}

func TestTimeoutDefaultApplied(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config_version: 1\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Prompts.TimeoutSeconds != DefaultTimeout {
		t.Errorf("timeout_seconds = %d, want default %d", cfg.Prompts.TimeoutSeconds, DefaultTimeout)
	}
}

func TestEnvOverrideLogLevel(t *testing.T) {
	t.Setenv("ATLASBRIDGE_LOG_LEVEL", "DEBUG")
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("logging.level = %q, want DEBUG", cfg.Logging.Level)
	}
}

func TestEnvOverrideDBPath(t *testing.T) {
	custom := filepath.Join(t.TempDir(), "custom.db")
	t.Setenv("ATLASBRIDGE_DB_PATH", custom)
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBPath() != custom {
		t.Errorf("DBPath() = %q, want %q", cfg.DBPath(), custom)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	cfg := &Config{
		ConfigVersion: 1,
		Prompts:       PromptsConfig{TimeoutSeconds: 300},
	}
	if err := Save(cfg, path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Prompts.TimeoutSeconds != 300 {
		t.Errorf("timeout_seconds = %d after reload", loaded.Prompts.TimeoutSeconds)
	}
}

func TestSaveSecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	cfg := &Config{ConfigVersion: 1, Prompts: PromptsConfig{TimeoutSeconds: 300}}
	if err := Save(cfg, path); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config permissions = %o, want 0600", perm)
	}
}

func TestDefaultPaths(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(cfg.DBPath()) != DefaultDBFile {
		t.Errorf("DBPath() = %q", cfg.DBPath())
	}
	if filepath.Base(cfg.TracePath()) != DefaultTraceFile {
		t.Errorf("TracePath() = %q", cfg.TracePath())
	}
	if filepath.Base(cfg.PolicyFilePath()) != DefaultPolicyFile {
		t.Errorf("PolicyFilePath() = %q", cfg.PolicyFilePath())
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	cfg, err := LoadOrDefault(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Prompts.TimeoutSeconds != DefaultTimeout {
		t.Errorf("default timeout = %d", cfg.Prompts.TimeoutSeconds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}
