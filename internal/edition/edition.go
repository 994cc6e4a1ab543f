// Package edition resolves the product edition and gates edition-bound
// features. Detection reads the environment on every call so tests and
// long-running processes see changes immediately.
package edition

import (
	"os"
	"sort"
	"strings"
)

// Edition is the product tier.
type Edition string

const (
	Community  Edition = "community"
	Core       Edition = "core"
	Enterprise Edition = "enterprise"
)

// EnvVar selects the edition. Invalid or unset values fall back to
// community; the open tier is always the safe default.
const EnvVar = "ATLASBRIDGE_EDITION"

// rank orders editions for feature gating.
var rank = map[Edition]int{Community: 0, Core: 1, Enterprise: 2}

// Detect returns the current edition from the environment.
func Detect() Edition {
	switch Edition(strings.ToLower(os.Getenv(EnvVar))) {
	case Core:
		return Core
	case Enterprise:
		return Enterprise
	default:
		return Community
	}
}

// featureEditions maps each gated feature to the minimum edition it needs.
var featureEditions = map[string]Edition{
	"decision_trace_v2":  Core,
	"risk_classifier":    Core,
	"policy_pinning":     Core,
	"rbac":               Core,
	"cloud_policy_sync":  Enterprise,
	"cloud_audit_stream": Enterprise,
	"web_dashboard":      Enterprise,
}

// IsFeatureAvailable reports whether the named feature is unlocked in the
// current edition. Unknown features are always unavailable.
func IsFeatureAvailable(feature string) bool {
	required, ok := featureEditions[feature]
	if !ok {
		return false
	}
	return rank[Detect()] >= rank[required]
}

// Feature describes one gated feature for display.
type Feature struct {
	Name            string
	RequiredEdition Edition
	Available       bool
}

// Status returns "active" or "locked".
func (f Feature) Status() string {
	if f.Available {
		return "active"
	}
	return "locked"
}

// ListFeatures returns every gated feature with its availability in the
// current edition, sorted by name.
func ListFeatures() []Feature {
	current := rank[Detect()]
	features := make([]Feature, 0, len(featureEditions))
	for name, required := range featureEditions {
		features = append(features, Feature{
			Name:            name,
			RequiredEdition: required,
			Available:       current >= rank[required],
		})
	}
	sort.Slice(features, func(i, j int) bool { return features[i].Name < features[j].Name })
	return features
}
