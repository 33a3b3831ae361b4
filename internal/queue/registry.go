package queue

import (
	"sync"

	"github.com/awehrman/peas/internal/interfaces"
)

// Registry is a name-keyed lookup over a fixed set of queues, satisfying
// interfaces.QueueRegistry. Queues are registered once at startup.
type Registry struct {
	mu     sync.RWMutex
	queues map[string]interfaces.Queue
}

var _ interfaces.QueueRegistry = (*Registry)(nil)

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{queues: make(map[string]interfaces.Queue)}
}

// Register adds q under its own Name(). Later registrations with the same
// name overwrite earlier ones, since this only ever runs once at startup.
func (r *Registry) Register(q interfaces.Queue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[q.Name()] = q
}

// Queue resolves a registered queue by name.
func (r *Registry) Queue(name string) (interfaces.Queue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[name]
	return q, ok
}

// Names returns every registered queue name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.queues))
	for name := range r.queues {
		names = append(names, name)
	}
	return names
}
