// Package scenario provides a registry of self-registering end-to-end
// scenarios. Each scenario drives a freshly initialized OSAL instance the way
// the threads library would and reports the first property it finds broken.
package scenario

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	glog "github.com/zboralski/pteosal/internal/log"
	"github.com/zboralski/pteosal/internal/osal"
)

// RunFunc runs a scenario. ctx is the initial thread's context as returned by
// Init on o.
type RunFunc func(ctx context.Context, o *osal.OS) error

// Def defines a scenario.
type Def struct {
	Name        string // e.g. "handshake/start-gate"
	Category    string // For grouping: "handshake", "mutex", "tls", ...
	Description string
	Run         RunFunc
}

// Registry holds all registered scenarios.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Def
}

// DefaultRegistry is the global registry used by init() functions.
var DefaultRegistry = NewRegistry()

// Debug enables logging of registrations.
var Debug = false

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Def)}
}

// Register adds a scenario. A later registration under the same name
// replaces the earlier one.
func (r *Registry) Register(def Def) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.defs[def.Name] = &def

	if Debug && glog.L != nil {
		glog.L.Debug("registered",
			zap.String("cat", def.Category),
			zap.String("scenario", def.Name),
		)
	}
}

// Get returns the scenario registered under name.
func (r *Registry) Get(name string) (*Def, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// List returns every scenario sorted by name.
func (r *Registry) List() []*Def {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*Def, 0, len(r.defs))
	for _, d := range r.defs {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Count returns the number of registered scenarios.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Convenience functions for the default registry

// Register adds a scenario to the default registry.
func Register(def Def) {
	DefaultRegistry.Register(def)
}

// Get looks a scenario up in the default registry.
func Get(name string) (*Def, bool) {
	return DefaultRegistry.Get(name)
}

// List returns the scenarios of the default registry.
func List() []*Def {
	return DefaultRegistry.List()
}
