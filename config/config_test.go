package config

import "testing"

func TestOrchestrationConfig_HoldsAssignedValues(t *testing.T) {
	cfg := &Config{
		Orchestration: OrchestrationConfig{
			DefaultMaxIterations: 4,
			DefaultStopMarker:    "FINAL:",
			ContextTurnsToSend:   8,
		},
	}
	if cfg.Orchestration.DefaultMaxIterations != 4 {
		t.Fatalf("unexpected defaultMaxIterations: %d", cfg.Orchestration.DefaultMaxIterations)
	}
	if cfg.Orchestration.DefaultStopMarker != "FINAL:" {
		t.Fatalf("unexpected defaultStopMarker: %q", cfg.Orchestration.DefaultStopMarker)
	}
}

func TestNotificationsConfig_AllDisabledByDefault(t *testing.T) {
	var cfg Config
	if cfg.Notifications.PagerDuty.Enabled || cfg.Notifications.Jira.Enabled || cfg.Notifications.OpenSearch.Enabled {
		t.Fatalf("expected every notifier disabled on the zero value")
	}
}
