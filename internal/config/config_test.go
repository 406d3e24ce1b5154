package config

import (
	"encoding/json"
	"testing"
)

func TestDefault_PassesSchemaValidation(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(Default())
	if err != nil {
		t.Fatalf("marshal default config: %v", err)
	}
	var settings map[string]any
	if err := json.Unmarshal(raw, &settings); err != nil {
		t.Fatalf("unmarshal default config: %v", err)
	}
	if err := ValidateSettings(settings); err != nil {
		t.Fatalf("ValidateSettings returned error: %v", err)
	}
}

func TestDefault_PipelineLimits(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if cfg.LLM.Provider != ProviderGemini {
		t.Fatalf("provider = %q, want %q", cfg.LLM.Provider, ProviderGemini)
	}
	if cfg.Run.MaxAttempts != 3 {
		t.Fatalf("max_attempts = %d, want 3", cfg.Run.MaxAttempts)
	}
	if cfg.Sandbox.ExecTimeoutSeconds != 30 {
		t.Fatalf("exec_timeout_seconds = %d, want 30", cfg.Sandbox.ExecTimeoutSeconds)
	}
	if cfg.Run.GenTimeoutSecs != 120 {
		t.Fatalf("gen_timeout_seconds = %d, want 120", cfg.Run.GenTimeoutSecs)
	}
}

func TestInstallEnabled_DefaultsOn(t *testing.T) {
	t.Parallel()

	var sb SandboxConfig
	if !sb.InstallEnabled() {
		t.Fatal("InstallEnabled() = false for unset install_packages, want true")
	}

	off := false
	sb.InstallPackages = &off
	if sb.InstallEnabled() {
		t.Fatal("InstallEnabled() = true for install_packages=false, want false")
	}
}

func TestValidateSettings_RejectsUnknownProvider(t *testing.T) {
	t.Parallel()

	settings := map[string]any{
		"llm": map[string]any{"provider": "mainframe"},
	}
	if err := ValidateSettings(settings); err == nil {
		t.Fatal("ValidateSettings returned nil error, want error")
	}
}

func TestValidateSettings_RejectsUnknownTopLevelKey(t *testing.T) {
	t.Parallel()

	settings := map[string]any{
		"llm":     map[string]any{"provider": "gemini"},
		"budgets": map[string]any{"max_iterations": 5},
	}
	if err := ValidateSettings(settings); err == nil {
		t.Fatal("ValidateSettings returned nil error, want error")
	}
}

func TestValidateSettings_AllowsAgentProvider(t *testing.T) {
	t.Parallel()

	settings := map[string]any{
		"llm": map[string]any{
			"provider": "agent",
			"model":    "claude-sonnet-4-5",
		},
		"agent": map[string]any{
			"cmd":     []any{"claude"},
			"use_tty": false,
		},
	}
	if err := ValidateSettings(settings); err != nil {
		t.Fatalf("ValidateSettings returned error: %v", err)
	}
}
