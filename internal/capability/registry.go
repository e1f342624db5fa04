package capability

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/fx"
)

// Names the two providers the aggregation core registers at startup.
// Anything else a deployment wires in is dispatched the same way.
const (
	QueryRecordsByIdentifiers = "query_records_by_identifiers"
	RunIngestionCycle         = "run_ingestion_cycle"
)

// Provider is a named unit of work a plan step can dispatch to.
type Provider interface {
	Execute(ctx context.Context, input map[string]any) (map[string]any, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

func (f ProviderFunc) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	return f(ctx, input)
}

type NotFoundError struct {
	Capability string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("capability %q is not registered", e.Capability)
}

// Registry maps capability names to providers. It is populated during
// startup, frozen, and read-only thereafter; Lookup takes no lock once
// frozen.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	frozen    bool
}

func Module() fx.Option {
	return fx.Provide(NewRegistry)
}

func NewRegistry() *Registry {
	return &Registry{providers: map[string]Provider{}}
}

func (r *Registry) Register(name string, p Provider) error {
	if name == "" {
		return fmt.Errorf("capability name is empty")
	}
	if p == nil {
		return fmt.Errorf("capability %q: provider is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("capability %q: registry is frozen", name)
	}
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("capability %q is already registered", name)
	}
	r.providers[name] = p
	return nil
}

// Freeze rejects all further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

func (r *Registry) Lookup(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, &NotFoundError{Capability: name}
	}
	return p, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
