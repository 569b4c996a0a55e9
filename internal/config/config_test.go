package config

import "testing"

func TestConfig_validateRequiresToken(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("empty metadata token passed validation")
	}
	cfg.MDBToken = "tok"
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("STREAMVAULT_TEST_INT", "12")
	if got := envInt("STREAMVAULT_TEST_INT", 4); got != 12 {
		t.Errorf("envInt = %d, want 12", got)
	}
	t.Setenv("STREAMVAULT_TEST_INT", "nope")
	if got := envInt("STREAMVAULT_TEST_INT", 4); got != 4 {
		t.Errorf("envInt fallback = %d, want 4", got)
	}
	if got := envInt("STREAMVAULT_TEST_UNSET", 7); got != 7 {
		t.Errorf("envInt unset = %d, want 7", got)
	}
}
