// Package sources holds the signal provider adapters. Every adapter turns a
// provider-specific payload into raw signals of one fixed shape and declares
// which of its date fields is authoritative for dedup hashing.
package sources

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ppiankov/painpoint/internal/logging"
	"github.com/ppiankov/painpoint/internal/model"
)

// Source is one external signal provider.
type Source interface {
	// Name returns the provenance id stamped on every signal.
	Name() string

	// DateField names the field hashed as the event date.
	DateField() string

	// Collect fetches the provider's current records.
	Collect(ctx context.Context) ([]model.RawSignal, error)
}

// Deps are the shared collaborators handed to every adapter.
type Deps struct {
	Fetcher *Fetcher
	Robots  *RobotsChecker
	Logger  *slog.Logger
	Now     func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Factory builds an adapter named name from its configuration.
type Factory func(name string, cfg model.SourceConfig, deps Deps) (Source, error)

// Registry maps adapter kinds to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in adapters
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.Register("california_ag", newCaliforniaAG)
	r.Register("ransomware_live", newRansomwareLive)
	r.Register("hibp", newHIBP)
	r.Register("job_board", newJobBoard)
	r.Register("file", newFile)

	return r
}

// Register adds or replaces a factory for kind.
func (r *Registry) Register(kind string, f Factory) {
	r.factories[kind] = f
}

// Kinds returns the registered adapter kinds in order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build creates every enabled source, ordered by name. An entry's kind
// defaults to its name.
func (r *Registry) Build(cfgs map[string]model.SourceConfig, deps Deps) ([]Source, error) {
	deps.Logger = logging.OrDefault(deps.Logger)

	names := make([]string, 0, len(cfgs))
	for name, cfg := range cfgs {
		if cfg.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]Source, 0, len(names))
	for _, name := range names {
		cfg := cfgs[name]
		kind := cfg.Kind
		if kind == "" {
			kind = name
		}

		factory, ok := r.factories[kind]
		if !ok {
			return nil, fmt.Errorf("%w: source %q has unknown kind %q", model.ErrInvalidConfig, name, kind)
		}
		src, err := factory(name, cfg, deps)
		if err != nil {
			return nil, fmt.Errorf("build source %s: %w", name, err)
		}
		out = append(out, src)
	}
	return out, nil
}

func requireURL(name string, cfg model.SourceConfig) error {
	if cfg.URL == "" {
		return fmt.Errorf("%w: sources.%s.url required", model.ErrInvalidConfig, name)
	}
	return nil
}
