// Package config provides configuration loading and management for greycells.
package config

// Provider names for the LLM backend.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderAgent  = "agent"
)

// Config is the root configuration.
type Config struct {
	LLM       LLMConfig       `json:"llm"       mapstructure:"llm"`
	Agent     AgentConfig     `json:"agent"     mapstructure:"agent"`
	Sandbox   SandboxConfig   `json:"sandbox"   mapstructure:"sandbox"`
	Run       RunConfig       `json:"run"       mapstructure:"run"`
	Retention RetentionPolicy `json:"retention" mapstructure:"retention"`
}

// LLMConfig selects and tunes the model backend used for text generation.
type LLMConfig struct {
	Provider    string  `json:"provider"           mapstructure:"provider"`
	Model       string  `json:"model"              mapstructure:"model"`
	APIKeyEnv   string  `json:"api_key_env"        mapstructure:"api_key_env"`
	BaseURL     string  `json:"base_url,omitempty" mapstructure:"base_url"`
	Temperature float32 `json:"temperature"        mapstructure:"temperature"`
}

// AgentConfig describes how to run a CLI coding agent when the provider
// is "agent".
type AgentConfig struct {
	Cmd    []string `json:"cmd,omitempty"     mapstructure:"cmd"`
	Model  string   `json:"model,omitempty"   mapstructure:"model"`
	UseTTY *bool    `json:"use_tty,omitempty" mapstructure:"use_tty"`
}

// SandboxConfig controls how generated Python code is executed.
type SandboxConfig struct {
	Python                string `json:"python"                  mapstructure:"python"`
	ExecTimeoutSeconds    int    `json:"exec_timeout_seconds"    mapstructure:"exec_timeout_seconds"`
	InstallTimeoutSeconds int    `json:"install_timeout_seconds" mapstructure:"install_timeout_seconds"`
	InstallPackages       *bool  `json:"install_packages,omitempty" mapstructure:"install_packages"`
}

// RunConfig defines pipeline limits and output placement.
type RunConfig struct {
	MaxAttempts     int    `json:"max_attempts"          mapstructure:"max_attempts"`
	MaxExtractRetry int    `json:"max_extract_retry"     mapstructure:"max_extract_retry"`
	OutputDir       string `json:"output_dir,omitempty"  mapstructure:"output_dir"`
	GenTimeoutSecs  int    `json:"gen_timeout_seconds"   mapstructure:"gen_timeout_seconds"`
}

// RetentionPolicy defines how many old runs to keep.
type RetentionPolicy struct {
	KeepLast int `json:"keep_last,omitempty" mapstructure:"keep_last"`
	KeepDays int `json:"keep_days,omitempty" mapstructure:"keep_days"`
}

// Default returns the configuration written by `greycells init`.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider:    ProviderGemini,
			Model:       "gemini-2.0-flash",
			APIKeyEnv:   "LLM_API_KEY",
			Temperature: 0.2,
		},
		Sandbox: SandboxConfig{
			Python:                "python3",
			ExecTimeoutSeconds:    30,
			InstallTimeoutSeconds: 120,
		},
		Run: RunConfig{
			MaxAttempts:     3,
			MaxExtractRetry: 2,
			OutputDir:       "output",
			GenTimeoutSecs:  120,
		},
		Retention: RetentionPolicy{
			KeepLast: 20,
		},
	}
}

// InstallEnabled reports whether dependency installation is on. It defaults
// to true when unset.
func (c SandboxConfig) InstallEnabled() bool {
	return c.InstallPackages == nil || *c.InstallPackages
}
