package edition

import "testing"

func TestCommunityIsDefault(t *testing.T) {
	t.Setenv(EnvVar, "")
	if got := Detect(); got != Community {
		t.Errorf("Detect() = %q, want community", got)
	}
}

func TestDetectFromEnv(t *testing.T) {
	cases := []struct {
		env  string
		want Edition
	}{
		{"core", Core},
		{"enterprise", Enterprise},
		{"community", Community},
		{"CORE", Core},
		{"Enterprise", Enterprise},
		{"invalid", Community},
	}
	for _, tc := range cases {
		t.Setenv(EnvVar, tc.env)
		if got := Detect(); got != tc.want {
			t.Errorf("Detect() with %s=%q = %q, want %q", EnvVar, tc.env, got, tc.want)
		}
	}
}

func TestFeaturesLockedOnCommunity(t *testing.T) {
	t.Setenv(EnvVar, "community")
	for _, feature := range []string{
		"decision_trace_v2", "risk_classifier", "policy_pinning", "rbac",
		"cloud_policy_sync", "cloud_audit_stream", "web_dashboard",
	} {
		if IsFeatureAvailable(feature) {
			t.Errorf("feature %q must be locked on community", feature)
		}
	}
}

func TestUnknownFeatureUnavailable(t *testing.T) {
	t.Setenv(EnvVar, "enterprise")
	if IsFeatureAvailable("nonexistent_feature") {
		t.Error("unknown feature must be unavailable")
	}
}

func TestCoreFeaturesActiveOnCore(t *testing.T) {
	t.Setenv(EnvVar, "core")
	for _, feature := range []string{"decision_trace_v2", "risk_classifier", "rbac"} {
		if !IsFeatureAvailable(feature) {
			t.Errorf("feature %q must be active on core", feature)
		}
	}
	for _, feature := range []string{"cloud_policy_sync", "web_dashboard"} {
		if IsFeatureAvailable(feature) {
			t.Errorf("enterprise feature %q must stay locked on core", feature)
		}
	}
}

func TestListFeatures(t *testing.T) {
	t.Setenv(EnvVar, "community")
	features := ListFeatures()

	names := map[string]bool{}
	for _, f := range features {
		names[f.Name] = true
		if f.Status() != "locked" {
			t.Errorf("feature %q status = %q, want locked on community", f.Name, f.Status())
		}
	}
	for _, want := range []string{"decision_trace_v2", "risk_classifier", "cloud_policy_sync", "web_dashboard"} {
		if !names[want] {
			t.Errorf("ListFeatures missing %q", want)
		}
	}
}

func TestAllFeaturesActiveOnEnterprise(t *testing.T) {
	t.Setenv(EnvVar, "enterprise")
	for _, f := range ListFeatures() {
		if f.Status() != "active" {
			t.Errorf("feature %q status = %q, want active on enterprise", f.Name, f.Status())
		}
	}
}
