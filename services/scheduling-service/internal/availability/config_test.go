package availability

import (
	"testing"
	"time"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("BUSINESS_OPEN_HOUR", "8")
	t.Setenv("BUSINESS_CLOSE_HOUR", "12")
	t.Setenv("SLOT_MINUTES", "30")
	t.Setenv("BUSINESS_TIMEZONE", "UTC")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.OpenHour != 8 || cfg.CloseHour != 12 || cfg.Step != 30*time.Minute {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestConfigFromEnvRejectsBadStep(t *testing.T) {
	t.Setenv("SLOT_MINUTES", "50")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected error for a step that does not divide business hours")
	}
}
