package action

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"
)

// Constructor builds a concrete Action bound to deps. Registered once per
// name at startup; Create calls it fresh for every worker.
type Constructor func(deps *Dependencies) (Action, error)

// Registration pairs a name with its constructor for batch registration.
type Registration struct {
	Name        string
	Constructor Constructor
}

// Factory is the Action registry/factory: a name-keyed map of
// constructors, safe for concurrent registration and lookup.
type Factory struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
	logger       arbor.ILogger
}

// NewFactory constructs an empty Factory.
func NewFactory(logger arbor.ILogger) *Factory {
	return &Factory{
		constructors: make(map[string]Constructor),
		logger:       logger,
	}
}

// Register adds a named constructor. It errors if name is empty, ctor is
// nil, or name is already registered — registrations are meant to happen
// once, at startup, so a collision is a programming error, not a retry
// candidate.
func (f *Factory) Register(name string, ctor Constructor) error {
	if name == "" {
		return fmt.Errorf("action: register: name cannot be empty")
	}
	if ctor == nil {
		return fmt.Errorf("action: register: constructor cannot be nil for %s", name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.constructors[name]; exists {
		return fmt.Errorf("action: register: %s already registered", name)
	}
	f.constructors[name] = ctor

	if f.logger != nil {
		f.logger.Info().Str("action", name).Msg("Action registered")
	}
	return nil
}

// RegisterActions registers every entry in regs. It is atomic: if any
// registration fails, none of the batch is applied.
func RegisterActions(f *Factory, regs []Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range regs {
		if r.Name == "" {
			return fmt.Errorf("action: register actions: name cannot be empty")
		}
		if r.Constructor == nil {
			return fmt.Errorf("action: register actions: constructor cannot be nil for %s", r.Name)
		}
		if _, exists := f.constructors[r.Name]; exists {
			return fmt.Errorf("action: register actions: %s already registered", r.Name)
		}
	}

	for _, r := range regs {
		f.constructors[r.Name] = r.Constructor
		if f.logger != nil {
			f.logger.Info().Str("action", r.Name).Msg("Action registered")
		}
	}
	return nil
}

// Create builds a new Action instance for name, bound to deps.
func (f *Factory) Create(name string, deps *Dependencies) (Action, error) {
	f.mu.RLock()
	ctor, ok := f.constructors[name]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("action: create: %s not registered", name)
	}
	return ctor(deps)
}

// Names returns every registered action name, sorted.
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.constructors))
	for name := range f.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
