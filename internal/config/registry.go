package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/auricle-audio/auricle/pkg/provider/llm"
	"github.com/auricle-audio/auricle/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name. In production mode this is also
// what a request for a mock backend sees, since mocks are never registered.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps backend names to their constructor functions. It is safe for
// concurrent use. LLM factories take the model identifier because one runtime
// serves many models.
type Registry struct {
	mu  sync.RWMutex
	stt map[string]func() (stt.Provider, error)
	llm map[string]func(model string) (llm.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt: make(map[string]func() (stt.Provider, error)),
		llm: make(map[string]func(model string) (llm.Provider, error)),
	}
}

// RegisterSTT registers an STT backend factory under name. Subsequent calls
// with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func() (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterLLM registers an LLM backend factory under name.
func (r *Registry) RegisterLLM(name string, factory func(model string) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// CreateSTT instantiates the STT backend registered under name.
func (r *Registry) CreateSTT(name string) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, name)
	}
	return factory()
}

// CreateLLM instantiates the LLM backend registered under name for the given
// model identifier.
func (r *Registry) CreateLLM(name, model string) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, name)
	}
	return factory(model)
}

// STTNames lists the registered STT backend names, sorted. This is what
// /health advertises.
func (r *Registry) STTNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stt))
	for name := range r.stt {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
