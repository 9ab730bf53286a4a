package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != DefaultPort {
		t.Errorf("port = %q, want %q", cfg.Port, DefaultPort)
	}
	if cfg.ExtractDebounce != DefaultExtractDebounce {
		t.Errorf("debounce = %v, want %v", cfg.ExtractDebounce, DefaultExtractDebounce)
	}
	if cfg.RetentionWindow != DefaultRetentionWindow {
		t.Errorf("retention = %v, want %v", cfg.RetentionWindow, DefaultRetentionWindow)
	}
	if cfg.AgentMode {
		t.Error("agent mode should default to off")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DISPATCH_PORT", "9000")
	t.Setenv("DISPATCH_AGENT_MODE", "true")
	t.Setenv("DISPATCH_EXTRACT_DEBOUNCE", "250ms")
	t.Setenv("DISPATCH_RETENTION_WINDOW", "10m")

	cfg := Load()

	if cfg.Port != "9000" {
		t.Errorf("port = %q", cfg.Port)
	}
	if !cfg.AgentMode {
		t.Error("agent mode should be on")
	}
	if cfg.ExtractDebounce != 250*time.Millisecond {
		t.Errorf("debounce = %v", cfg.ExtractDebounce)
	}
	if cfg.RetentionWindow != 10*time.Minute {
		t.Errorf("retention = %v", cfg.RetentionWindow)
	}
}

func TestEnvHelpersFallBackOnBadValues(t *testing.T) {
	t.Setenv("DISPATCH_TEST_BOOL", "not-a-bool")
	if EnvBool("DISPATCH_TEST_BOOL", true) != true {
		t.Error("invalid bool should fall back")
	}

	t.Setenv("DISPATCH_TEST_DUR", "soon")
	if EnvDuration("DISPATCH_TEST_DUR", time.Second) != time.Second {
		t.Error("invalid duration should fall back")
	}

	if Env("DISPATCH_TEST_UNSET", "fallback") != "fallback" {
		t.Error("unset var should fall back")
	}
}
