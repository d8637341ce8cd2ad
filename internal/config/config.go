// Package config provides the configuration schema, environment loader, and
// provider registry for the meeting audio engine.
//
// Configuration is layered: compiled-in defaults, then an optional YAML
// tuning file (env ENGINE_CONFIG), then environment variables. The engine
// binds to loopback only; a non-loopback host is a hard validation error so
// the process can refuse to start before opening a socket.
package config

import "log/slog"

// LogLevel controls log verbosity for the engine.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps the level to its slog equivalent. Unknown levels map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Mode selects the runtime profile. Production refuses mock backends.
type Mode string

const (
	ModeProd Mode = "prod"
	ModeDev  Mode = "dev"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	return m == ModeProd || m == ModeDev
}

// Compiled-in defaults.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8756

	DefaultLLMModel  = "qwen3:4b-instruct"
	DefaultOutputDir = "~/Documents/Meeting Summaries"
	DefaultCSVPath   = "~/Documents/Meeting Summaries/meetings.csv"

	DefaultWhisperServerURL  = "http://127.0.0.1:8080"
	DefaultParakeetServerURL = "http://127.0.0.1:8765"
	DefaultOllamaBaseURL     = "http://localhost:11434"
)

// Config is the root configuration for the engine process.
type Config struct {
	// Host must resolve to a loopback address. The engine never serves
	// non-local traffic.
	Host string `yaml:"host"`

	// Port is the TCP port the HTTP API listens on.
	Port int `yaml:"port"`

	LogLevel LogLevel `yaml:"log_level"`
	Mode     Mode     `yaml:"mode"`

	// AuthToken, when non-empty, is required in the X-Engine-Token header of
	// every request except /health and /metrics. Environment only; it is
	// never read from the tuning file.
	AuthToken string `yaml:"-"`

	// Pipeline tuning.
	MaxActiveSessions       int     `yaml:"max_active_sessions"`
	ChunkDurationSeconds    float64 `yaml:"chunk_duration_seconds"`
	MaxQueueDepth           int     `yaml:"max_queue_depth"`
	PushSoftDeadlineSeconds float64 `yaml:"push_soft_deadline_seconds"`
	StopDrainTimeoutSeconds float64 `yaml:"stop_drain_timeout_seconds"`
	MaxConcurrentLLMCalls   int     `yaml:"max_concurrent_llm_calls"`

	// Backend endpoints.
	WhisperServerURL  string `yaml:"whisper_server_url"`
	ParakeetServerURL string `yaml:"parakeet_server_url"`
	OllamaBaseURL     string `yaml:"ollama_base_url"`

	// WhisperModelPath, when set, additionally registers the in-process
	// whisper backend ("whisper-native") loading this GGML model file.
	WhisperModelPath string `yaml:"whisper_model_path"`

	// LLMBackend selects the LLM runtime adapter: "ollama" (native client,
	// supports schema-constrained extraction) or "llamacpp" / "llamafile"
	// (OpenAI-compatible local servers).
	LLMBackend string `yaml:"llm_backend"`

	// FillerPhrases overrides the low-content guard's filler set. Empty keeps
	// the built-in whisper hallucination phrases.
	FillerPhrases []string `yaml:"filler_phrases"`

	// Defaults are the per-session settings used when /start_session omits
	// the corresponding user_settings fields.
	Defaults UserSettings `yaml:"defaults"`
}

// UserSettings are the per-session knobs a capture client may override in
// /start_session. Zero values mean "use the engine default".
type UserSettings struct {
	ChunkSummaryPrompt   string `yaml:"chunk_summary_prompt" json:"chunk_summary_prompt"`
	FinalSummaryPrompt   string `yaml:"final_summary_prompt" json:"final_summary_prompt"`
	DataExtractionPrompt string `yaml:"data_extraction_prompt" json:"data_extraction_prompt"`

	LLMModelName string `yaml:"llm_model_name" json:"llm_model_name"`

	OutputDir     string `yaml:"output_dir" json:"output_dir"`
	CSVExportPath string `yaml:"csv_export_path" json:"csv_export_path"`

	// AppendCSV nil means the engine default. False disables the CSV row for
	// this session entirely.
	AppendCSV *bool `yaml:"append_csv" json:"append_csv"`

	// MeetingFolders nil means the engine default. True writes per-meeting
	// subfolders named after the extracted company and contact.
	MeetingFolders *bool `yaml:"meeting_folders" json:"meeting_folders"`

	// Vocabulary lists domain terms the phonetic corrector snaps STT output
	// to (fund names, tickers, people).
	Vocabulary []string `yaml:"vocabulary" json:"vocabulary"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	appendCSV := true
	meetingFolders := false
	return Config{
		Host:     DefaultHost,
		Port:     DefaultPort,
		LogLevel: LogInfo,
		Mode:     ModeProd,

		MaxActiveSessions:       1,
		ChunkDurationSeconds:    60,
		MaxQueueDepth:           64,
		PushSoftDeadlineSeconds: 5,
		StopDrainTimeoutSeconds: 120,
		MaxConcurrentLLMCalls:   2,

		WhisperServerURL:  DefaultWhisperServerURL,
		ParakeetServerURL: DefaultParakeetServerURL,
		OllamaBaseURL:     DefaultOllamaBaseURL,
		LLMBackend:        "ollama",

		Defaults: UserSettings{
			LLMModelName:   DefaultLLMModel,
			OutputDir:      DefaultOutputDir,
			CSVExportPath:  DefaultCSVPath,
			AppendCSV:      &appendCSV,
			MeetingFolders: &meetingFolders,
		},
	}
}

// Merge overlays per-request settings on the engine defaults and returns the
// effective settings for one session.
func (c Config) Merge(req UserSettings) UserSettings {
	out := c.Defaults
	if req.ChunkSummaryPrompt != "" {
		out.ChunkSummaryPrompt = req.ChunkSummaryPrompt
	}
	if req.FinalSummaryPrompt != "" {
		out.FinalSummaryPrompt = req.FinalSummaryPrompt
	}
	if req.DataExtractionPrompt != "" {
		out.DataExtractionPrompt = req.DataExtractionPrompt
	}
	if req.LLMModelName != "" {
		out.LLMModelName = req.LLMModelName
	}
	if req.OutputDir != "" {
		out.OutputDir = req.OutputDir
	}
	if req.CSVExportPath != "" {
		out.CSVExportPath = req.CSVExportPath
	}
	if req.AppendCSV != nil {
		out.AppendCSV = req.AppendCSV
	}
	if req.MeetingFolders != nil {
		out.MeetingFolders = req.MeetingFolders
	}
	if len(req.Vocabulary) > 0 {
		out.Vocabulary = req.Vocabulary
	}
	return out
}

// AppendCSVEnabled resolves the AppendCSV pointer, defaulting to true.
func (s UserSettings) AppendCSVEnabled() bool {
	return s.AppendCSV == nil || *s.AppendCSV
}

// MeetingFoldersEnabled resolves the MeetingFolders pointer, defaulting to
// false (flat timestamped files).
func (s UserSettings) MeetingFoldersEnabled() bool {
	return s.MeetingFolders != nil && *s.MeetingFolders
}
