package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment variable names read by FromEnv.
const (
	EnvHost      = "ENGINE_HOST"
	EnvPort      = "ENGINE_PORT"
	EnvLogLevel  = "ENGINE_LOG_LEVEL"
	EnvMode      = "ENGINE_MODE"
	EnvAuthToken = "ENGINE_AUTH_TOKEN"
	EnvConfig    = "ENGINE_CONFIG"
)

// FromEnv builds the effective configuration: compiled-in defaults, then the
// optional YAML tuning file named by ENGINE_CONFIG, then environment
// variables. The result is validated.
func FromEnv() (Config, error) {
	cfg := Default()

	if path := os.Getenv(EnvConfig); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := overlayYAML(&cfg, f); err != nil {
			return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	if v := os.Getenv(EnvHost); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s %q is not an integer", EnvPort, v)
		}
		cfg.Port = port
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = LogLevel(v)
	}
	if v := os.Getenv(EnvMode); v != "" {
		cfg.Mode = Mode(v)
	}
	cfg.AuthToken = os.Getenv(EnvAuthToken)

	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// overlayYAML decodes a tuning file over cfg. Unknown fields are errors so a
// typo in a tuning key cannot silently fall back to a default.
func overlayYAML(cfg *Config, r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !isLoopbackHost(cfg.Host) {
		errs = append(errs, fmt.Errorf("host %q is not a loopback address; the engine only serves local clients", cfg.Host))
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d is out of range [1, 65535]", cfg.Port))
	}
	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Mode != "" && !cfg.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("mode %q is invalid; valid values: prod, dev", cfg.Mode))
	}
	if cfg.MaxActiveSessions <= 0 {
		errs = append(errs, fmt.Errorf("max_active_sessions %d must be positive", cfg.MaxActiveSessions))
	}
	if cfg.ChunkDurationSeconds <= 0 {
		errs = append(errs, fmt.Errorf("chunk_duration_seconds %.2f must be positive", cfg.ChunkDurationSeconds))
	}
	if cfg.MaxQueueDepth <= 0 {
		errs = append(errs, fmt.Errorf("max_queue_depth %d must be positive", cfg.MaxQueueDepth))
	}
	if cfg.PushSoftDeadlineSeconds <= 0 {
		errs = append(errs, fmt.Errorf("push_soft_deadline_seconds %.2f must be positive", cfg.PushSoftDeadlineSeconds))
	}
	if cfg.StopDrainTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("stop_drain_timeout_seconds %.2f must be positive", cfg.StopDrainTimeoutSeconds))
	}
	if cfg.MaxConcurrentLLMCalls <= 0 {
		errs = append(errs, fmt.Errorf("max_concurrent_llm_calls %d must be positive", cfg.MaxConcurrentLLMCalls))
	}
	switch cfg.LLMBackend {
	case "ollama", "llamacpp", "llamafile":
	default:
		errs = append(errs, fmt.Errorf("llm_backend %q is invalid; valid values: ollama, llamacpp, llamafile", cfg.LLMBackend))
	}
	if cfg.Defaults.LLMModelName == "" {
		errs = append(errs, errors.New("defaults.llm_model_name must not be empty"))
	}
	if cfg.Defaults.OutputDir == "" {
		errs = append(errs, errors.New("defaults.output_dir must not be empty"))
	}

	return errors.Join(errs...)
}

// isLoopbackHost accepts "localhost" and any literal loopback IP.
func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
