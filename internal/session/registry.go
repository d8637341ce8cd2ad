package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/auricle-audio/auricle/internal/fault"
)

// DefaultHistorySize is how many terminal session results the registry
// remembers so a repeated stop can answer "already_stopped" instead of
// "unknown session".
const DefaultHistorySize = 32

// Registry is the process-wide map from session id to live [Session]. It
// enforces the single-active-session policy and keeps an LRU history of
// terminal results. No I/O happens while the registry lock is held.
type Registry struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	history   map[string]StopResult
	order     []string
	maxActive int
	histSize  int
	logger    *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMaxActive overrides the number of concurrently active sessions.
// Default 1: the engine serves one meeting at a time.
func WithMaxActive(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.maxActive = n
		}
	}
}

// WithHistorySize overrides the terminal-result history capacity.
func WithHistorySize(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.histSize = n
		}
	}
}

// WithRegistryLogger sets the registry's logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions:  make(map[string]*Session),
		history:   make(map[string]StopResult),
		maxActive: 1,
		histSize:  DefaultHistorySize,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Add registers a new session under its id. Fails when the id was ever used
// before or when the active-session limit is reached.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := s.ID()
	if _, live := r.sessions[id]; live {
		return fault.Newf(fault.CodeSessionAlreadyExists, "session %s already exists", id)
	}
	if _, stopped := r.history[id]; stopped {
		return fault.Newf(fault.CodeSessionAlreadyExists, "session %s was already used", id).
			WithHint("generate a fresh session id for each recording")
	}
	if len(r.sessions) >= r.maxActive {
		return fault.New(fault.CodeSessionAlreadyActive, "another session is already active").
			WithHint("stop the current session before starting a new one")
	}
	r.sessions[id] = s
	return nil
}

// Remove drops a session that never became active (backend open failed).
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Get returns the live session for id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	if _, stopped := r.history[id]; stopped {
		return nil, fault.Newf(fault.CodeSessionNotFound, "session %s is already stopped", id).
			WithHint("start a new session to record more audio")
	}
	return nil, fault.Newf(fault.CodeSessionNotFound, "unknown session %s", id)
}

// Push routes one audio chunk to its session.
func (r *Registry) Push(ctx context.Context, id, pcmB64 string, sampleRate int) (PushResult, error) {
	s, err := r.Get(id)
	if err != nil {
		return PushResult{}, err
	}
	return s.PushChunk(ctx, pcmB64, sampleRate)
}

// Stop stops the session and retires it into the history. A stop for an id
// already in the history returns the cached result with AlreadyStopped set.
func (r *Registry) Stop(ctx context.Context, id string) (StopResult, error) {
	r.mu.Lock()
	if res, ok := r.history[id]; ok {
		r.mu.Unlock()
		res.AlreadyStopped = true
		return res, nil
	}
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return StopResult{}, fault.Newf(fault.CodeSessionNotFound, "unknown session %s", id)
	}

	res, err := s.Stop(ctx)
	if s.Status().Terminal() {
		r.retire(id, res)
	}
	return res, err
}

// retire moves a terminal session's result into the LRU history.
func (r *Registry) retire(id string, res StopResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, live := r.sessions[id]; !live {
		return
	}
	delete(r.sessions, id)

	res.AlreadyStopped = false
	r.history[id] = res
	r.order = append(r.order, id)
	for len(r.order) > r.histSize {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.history, oldest)
	}
}

// Abort marks every live session failed. Called on process shutdown.
func (r *Registry) Abort(ctx context.Context) {
	r.mu.Lock()
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.Unlock()

	for _, s := range live {
		s.Abort(ctx)
		res, _ := s.Stop(ctx)
		r.retire(s.ID(), res)
	}
	if len(live) > 0 {
		r.logger.Warn("aborted sessions on shutdown", "count", len(live))
	}
}

// ActiveCount reports the number of live (non-retired) sessions.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
