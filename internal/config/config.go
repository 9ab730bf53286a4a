// Package config provides configuration helpers for go-dispatch commands.
package config

import (
	"os"
	"strconv"
	"time"
)

// Server defaults.
const (
	DefaultPort             = "8080"
	DefaultExtractDebounce  = 400 * time.Millisecond
	DefaultRetentionWindow  = 5 * time.Minute
	DefaultExtractTimeout   = 15 * time.Second
	DefaultSynthesisTimeout = 30 * time.Second
)

// Config holds the dispatchd server configuration.
// All fields are populated from environment variables with sensible defaults.
type Config struct {
	// Port is the HTTP/websocket listen port.
	Port string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// AgentMode enables the voice-agent pipeline for new calls.
	// Calls started while this is false go to a human dispatcher.
	AgentMode bool

	// ExtractDebounce is the quiescence window before an extraction runs.
	ExtractDebounce time.Duration

	// RetentionWindow is how long a completed session stays readable
	// before it is purged from the registry.
	RetentionWindow time.Duration

	// ExtractTimeout bounds a single structured-extraction call.
	ExtractTimeout time.Duration

	// SynthesisTimeout bounds a single speech-synthesis stream.
	SynthesisTimeout time.Duration

	// STTURL is the speech-to-text vendor websocket endpoint.
	STTURL string

	// AgentURL is the voice-agent vendor websocket endpoint.
	AgentURL string

	// TTSURL is the text-to-speech vendor HTTP endpoint.
	TTSURL string

	// LLMBaseURL is the OpenAI-compatible API base for extraction and reports.
	LLMBaseURL string

	// LLMModel is the model used for extraction and reports.
	LLMModel string

	// APIKey authenticates against the speech and LLM vendors.
	APIKey string

	// ReportDir is where final call reports are written.
	ReportDir string
}

// Load reads the configuration from the environment.
func Load() Config {
	return Config{
		Port:             Env("DISPATCH_PORT", DefaultPort),
		LogLevel:         Env("DISPATCH_LOG_LEVEL", "info"),
		AgentMode:        EnvBool("DISPATCH_AGENT_MODE", false),
		ExtractDebounce:  EnvDuration("DISPATCH_EXTRACT_DEBOUNCE", DefaultExtractDebounce),
		RetentionWindow:  EnvDuration("DISPATCH_RETENTION_WINDOW", DefaultRetentionWindow),
		ExtractTimeout:   EnvDuration("DISPATCH_EXTRACT_TIMEOUT", DefaultExtractTimeout),
		SynthesisTimeout: EnvDuration("DISPATCH_SYNTHESIS_TIMEOUT", DefaultSynthesisTimeout),
		STTURL:           os.Getenv("DISPATCH_STT_URL"),
		AgentURL:         os.Getenv("DISPATCH_AGENT_URL"),
		TTSURL:           os.Getenv("DISPATCH_TTS_URL"),
		LLMBaseURL:       Env("DISPATCH_LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMModel:         Env("DISPATCH_LLM_MODEL", "gpt-4o-mini"),
		APIKey:           os.Getenv("DISPATCH_API_KEY"),
		ReportDir:        Env("DISPATCH_REPORT_DIR", "./reports"),
	}
}

// Env returns the value of key, or fallback if unset or empty.
func Env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvBool returns the boolean value of key, or fallback if unset or invalid.
func EnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// EnvDuration returns the duration value of key, or fallback if unset or invalid.
// Accepts Go duration syntax ("400ms", "5m").
func EnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
