package venue

import (
	"fmt"
	"sync"

	"github.com/tradefabric/gateway/internal/apierr"
	"github.com/tradefabric/gateway/internal/eventbus"
	"github.com/tradefabric/gateway/internal/model"
	"github.com/rs/zerolog"
)

// Constructor builds an Adapter for one venue from its configuration.
// Grounded on datafacade/factory.go's createVenueAdapters switch, but
// reimplemented as an explicit registry per DESIGN NOTES §9 ("Adapter
// factory"): an enabled venue with no registered constructor is a
// Configuration error at boot, not a silent no-op adapter.
type Constructor func(cfg Config, bus *eventbus.Bus, logger zerolog.Logger) (Adapter, error)

// Registry holds the set of venue constructors known at process
// startup. Every enabled venue is registered once, during init of its
// package (internal/venue/hyperliquid, .../lighter, .../tradexyz).
type Registry struct {
	mu    sync.RWMutex
	ctors map[model.Venue]Constructor
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[model.Venue]Constructor)}
}

// DefaultRegistry is the process-wide registry each venue package
// registers itself into from its init(). cmd/gateway builds adapters
// from this registry unless a test supplies its own.
var DefaultRegistry = NewRegistry()

func (r *Registry) Register(v model.Venue, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[v] = ctor
}

// Build constructs an adapter for v. Returns a Configuration error if
// no constructor has been registered for v.
func (r *Registry) Build(v model.Venue, cfg Config, bus *eventbus.Bus, logger zerolog.Logger) (Adapter, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[v]
	r.mu.RUnlock()
	if !ok {
		return nil, apierr.Configuration(fmt.Sprintf("no adapter registered for venue %q", v))
	}
	return ctor(cfg, bus, logger)
}

// Known reports whether a constructor is registered for v.
func (r *Registry) Known(v model.Venue) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ctors[v]
	return ok
}
