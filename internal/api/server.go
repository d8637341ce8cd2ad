// Package api exposes the engine's localhost HTTP surface: health and
// metrics probes plus the three session endpoints the capture client drives
// (/start_session, /audio_chunk, /stop_session).
//
// Every non-2xx response uses the unified error envelope:
//
//	{ "status":"error", "error_code":"<TOKEN>", "message":"...",
//	  "details":{ "hint":"..." } }
//
// Request handling never touches transcript text; handlers log metadata only.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/auricle-audio/auricle/internal/config"
	"github.com/auricle-audio/auricle/internal/fault"
	"github.com/auricle-audio/auricle/internal/observe"
	"github.com/auricle-audio/auricle/internal/output"
	"github.com/auricle-audio/auricle/internal/session"
	"github.com/auricle-audio/auricle/internal/summarize"
	"github.com/auricle-audio/auricle/pkg/audio"
	"github.com/auricle-audio/auricle/pkg/provider/llm"
	"github.com/auricle-audio/auricle/pkg/provider/stt"
)

// EngineVersion is reported by /health. Bumped on releases.
const EngineVersion = "1.0.0"

// APIVersion is the wire-format version reported by /health.
const APIVersion = "1"

// AuthHeader carries the shared secret when token auth is enabled.
const AuthHeader = "X-Engine-Token"

// Deps are the collaborators the server dispatches into.
type Deps struct {
	Config   config.Config
	Registry *session.Registry
	Backends *config.Registry

	// LLM is the guarded provider for the engine's default model. Used by
	// /health for model discovery and by sessions that keep the default.
	LLM llm.Provider

	// LLMForModel builds a guarded provider for a per-session model override.
	// Nil means overrides fall back to the default provider.
	LLMForModel func(model string) (llm.Provider, error)

	Summarizer *summarize.MapReduce
	Writer     *output.Writer
	Logger     *slog.Logger
	Metrics    *observe.Metrics
}

// Server is the HTTP API. Construct with NewServer and mount via Handler.
type Server struct {
	deps Deps
}

// NewServer creates the API server. Nil logger and metrics fall back to the
// process defaults.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	return &Server{deps: deps}
}

// Handler returns the full middleware-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /start_session", s.authed(s.handleStartSession))
	mux.HandleFunc("POST /audio_chunk", s.authed(s.handleAudioChunk))
	mux.HandleFunc("POST /stop_session", s.authed(s.handleStopSession))
	return observe.Middleware(s.deps.Metrics)(mux)
}

// authed enforces the shared token on session endpoints. An empty configured
// token disables auth entirely.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	token := []byte(s.deps.Config.AuthToken)
	if len(token) == 0 {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get(AuthHeader))
		if subtle.ConstantTimeCompare(got, token) != 1 {
			s.writeError(w, r, fault.New(fault.CodeUnauthorized, "missing or invalid engine token").
				WithHint("provide the X-Engine-Token header"))
			return
		}
		next(w, r)
	}
}

// ---- /health ------------------------------------------------------------------

type healthResponse struct {
	Status        string   `json:"status"`
	EngineVersion string   `json:"engine_version"`
	APIVersion    string   `json:"api_version"`
	STTBackends   []string `json:"stt_backends"`
	LLMModels     []string `json:"llm_models"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	models := s.llmModels(r)
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		EngineVersion: EngineVersion,
		APIVersion:    APIVersion,
		STTBackends:   s.deps.Backends.STTNames(),
		LLMModels:     models,
	})
}

// llmModels asks the runtime for its installed models; when listing is
// unsupported or failing, the configured default is advertised alone.
func (s *Server) llmModels(r *http.Request) []string {
	fallback := []string{s.deps.Config.Defaults.LLMModelName}
	lister, ok := s.deps.LLM.(llm.ModelLister)
	if !ok {
		return fallback
	}
	ctx, cancel := withTimeout(r, 3*time.Second)
	defer cancel()
	models, err := lister.Models(ctx)
	if err != nil || len(models) == 0 {
		return fallback
	}
	return models
}

// ---- /start_session -----------------------------------------------------------

type startRequest struct {
	SessionID    string              `json:"session_id"`
	Model        string              `json:"model"`
	SampleRate   int                 `json:"sample_rate"`
	UserSettings config.UserSettings `json:"user_settings"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := validateSessionID(req.SessionID); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := audio.ValidateSampleRate(req.SampleRate); err != nil {
		s.writeError(w, r, fault.Wrap(fault.CodeInvalidRequest, "sample_rate is not usable", err))
		return
	}

	cfg := s.deps.Config
	settings := cfg.Merge(req.UserSettings)

	provider, err := s.deps.Backends.CreateSTT(req.Model)
	if err != nil {
		if errors.Is(err, config.ErrProviderNotRegistered) {
			s.writeError(w, r, fault.Newf(fault.CodeInvalidRequest, "unknown stt model %q", req.Model).
				WithDetail("known_models", s.deps.Backends.STTNames()))
			return
		}
		s.writeError(w, r, fault.Wrap(fault.CodeSTTUnavailable, "stt backend failed to load", err))
		return
	}

	sessionLLM, err := s.sessionLLM(settings.LLMModelName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if cfg.Mode == config.ModeProd {
		if err := s.ensureModelInstalled(r, sessionLLM, settings.LLMModelName); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	sess := session.New(session.Config{
		SessionID:            req.SessionID,
		STTBackend:           req.Model,
		CaptureSampleRate:    req.SampleRate,
		LLMModel:             settings.LLMModelName,
		ChunkDurationSeconds: cfg.ChunkDurationSeconds,
		MaxQueueDepth:        cfg.MaxQueueDepth,
		PushSoftDeadline:     secondsToDuration(cfg.PushSoftDeadlineSeconds),
		StopDrainTimeout:     secondsToDuration(cfg.StopDrainTimeoutSeconds),
		Vocabulary:           settings.Vocabulary,
		FillerPhrases:        cfg.FillerPhrases,
		OutputDir:            settings.OutputDir,
		CSVPath:              settings.CSVExportPath,
		AppendCSV:            settings.AppendCSVEnabled(),
		FolderNaming:         settings.MeetingFoldersEnabled(),
	}, session.Deps{
		Summarizer: s.deps.Summarizer.ForSession(sessionLLM, summarize.Prompts{
			Chunk:      settings.ChunkSummaryPrompt,
			Final:      settings.FinalSummaryPrompt,
			Extraction: settings.DataExtractionPrompt,
		}),
		Writer:  s.deps.Writer,
		Logger:  s.deps.Logger,
		Metrics: s.deps.Metrics,
	})

	if err := s.deps.Registry.Add(sess); err != nil {
		s.writeError(w, r, err)
		return
	}

	tr, err := provider.OpenSession(r.Context(), stt.SessionConfig{
		CaptureSampleRate: req.SampleRate,
	})
	if err != nil {
		s.deps.Registry.Remove(req.SessionID)
		s.writeError(w, r, fault.Wrap(fault.CodeSTTUnavailable, "stt backend failed to open a session", err))
		return
	}
	sess.Activate(tr)

	s.deps.Logger.Info("session started",
		"session_id", req.SessionID,
		"stt_backend", req.Model,
		"sample_rate", req.SampleRate,
		"llm_model", settings.LLMModelName,
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionLLM resolves the provider for the session's model, reusing the
// default provider when no override applies.
func (s *Server) sessionLLM(model string) (llm.Provider, error) {
	if model == s.deps.Config.Defaults.LLMModelName || s.deps.LLMForModel == nil {
		return s.deps.LLM, nil
	}
	p, err := s.deps.LLMForModel(model)
	if err != nil {
		return nil, fault.Wrap(fault.CodeLLMUnavailable, "llm backend failed to load", err).
			WithHint("check the llm_model_name and the local LLM runtime")
	}
	return p, nil
}

// ensureModelInstalled verifies the model exists in the local runtime before
// a session starts. Runtimes that cannot enumerate models are trusted.
func (s *Server) ensureModelInstalled(r *http.Request, p llm.Provider, model string) error {
	lister, ok := p.(llm.ModelLister)
	if !ok {
		return nil
	}
	ctx, cancel := withTimeout(r, 5*time.Second)
	defer cancel()
	models, err := lister.Models(ctx)
	if err != nil {
		return fault.Wrap(fault.CodeLLMUnavailable, "local llm runtime is not reachable", err).
			WithHint("start the llm runtime and retry")
	}
	if !slices.Contains(models, model) {
		return fault.Newf(fault.CodeLLMUnavailable, "model %q is not installed", model).
			WithHint("pull the model first, e.g. `ollama pull " + model + "`")
	}
	return nil
}

// ---- /audio_chunk -------------------------------------------------------------

type audioChunkRequest struct {
	SessionID  string  `json:"session_id"`
	Timestamp  float64 `json:"timestamp"`
	PCMB64     string  `json:"pcm_b64"`
	SampleRate int     `json:"sample_rate"`
}

type audioChunkResponse struct {
	Status          string  `json:"status"`
	BufferedSeconds float64 `json:"buffered_seconds"`
	QueueDepth      int     `json:"queue_depth"`
}

func (s *Server) handleAudioChunk(w http.ResponseWriter, r *http.Request) {
	var req audioChunkRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := validateSessionID(req.SessionID); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.PCMB64 == "" {
		s.writeError(w, r, fault.New(fault.CodeInvalidAudioFormat, "pcm_b64 is empty"))
		return
	}

	res, err := s.deps.Registry.Push(r.Context(), req.SessionID, req.PCMB64, req.SampleRate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, audioChunkResponse{
		Status:          "ok",
		BufferedSeconds: res.BufferedSeconds,
		QueueDepth:      res.QueueDepth,
	})
}

// ---- /stop_session ------------------------------------------------------------

type stopRequest struct {
	SessionID string `json:"session_id"`
}

type stopResponse struct {
	Status        string  `json:"status"`
	SummaryPath   *string `json:"summary_path"`
	DataPath      *string `json:"data_path"`
	CSVPath       *string `json:"csv_path"`
	SessionStatus string  `json:"session_status"`
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := validateSessionID(req.SessionID); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Registry.Stop(r.Context(), req.SessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := "ok"
	if res.AlreadyStopped {
		status = "already_stopped"
	}
	writeJSON(w, http.StatusOK, stopResponse{
		Status:        status,
		SummaryPath:   nullableString(res.SummaryPath),
		DataPath:      nullableString(res.DataPath),
		CSVPath:       nullableString(res.CSVPath),
		SessionStatus: string(res.Status),
	})
}

// ---- helpers ------------------------------------------------------------------

type errorResponse struct {
	Status    string         `json:"status"`
	ErrorCode string         `json:"error_code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	fe := fault.AsError(err)
	if fe.Code == fault.CodeInternal {
		s.deps.Logger.Error("internal error", "path", r.URL.Path, "error", err)
	} else {
		s.deps.Logger.Warn("request failed", "path", r.URL.Path, "error_code", fe.Code, "message", fe.Message)
	}

	details := make(map[string]any, len(fe.Details)+1)
	for k, v := range fe.Details {
		details[k] = v
	}
	if fe.Hint != "" {
		details["hint"] = fe.Hint
	}
	writeJSON(w, fault.HTTPStatus(fe.Code), errorResponse{
		Status:    "error",
		ErrorCode: string(fe.Code),
		Message:   fe.Message,
		Details:   details,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fault.Wrap(fault.CodeInvalidRequest, "request body is not valid JSON", err)
	}
	return nil
}

func validateSessionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fault.Newf(fault.CodeInvalidRequest, "session_id %q is not a valid uuid", id)
	}
	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// withTimeout derives a bounded context from the request.
func withTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}
