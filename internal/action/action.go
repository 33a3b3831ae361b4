// Package action defines the Action capability set, the per-worker
// Dependencies bundle it runs against, and the executeServiceAction helper
// every concrete action in internal/actions builds on.
package action

import (
	"context"

	"github.com/awehrman/peas/internal/interfaces"
	"github.com/awehrman/peas/internal/models"
	"github.com/ternarybob/arbor"
)

// Action is a named, validated unit of work over pipeline data. Data
// in and out is untyped at this boundary because one worker's pipeline
// (note) and another's (ingredient line, instruction line, image, source)
// carry different payload shapes; concrete actions assert
// the shape they expect in ValidateInput and Execute.
type Action interface {
	// Name is the stable identifier used in registrations (e.g. clean_html).
	Name() string
	// Retryable reports whether a transient failure from this action
	// should be retried by the worker runtime. Defaults to true.
	Retryable() bool
	// Priority is the action's declared priority (lower first). Defaults
	// to 0. The worker runtime does not read it: jobs are pulled and run
	// in the order their queue delivers them.
	Priority() int
	// ValidateInput is pure and side-effect free.
	ValidateInput(data any) error
	// Execute performs the action's work and returns the next-stage
	// payload, or a *pipeline.Error on failure.
	Execute(ctx context.Context, actx models.ActionContext, data any) (any, error)
}

// Dependencies is the capability set bound into every action
// constructed by the factory: logger, broadcaster, queues, cache, tracker,
// repository, and object storage. Workers hold one Dependencies per queue;
// it is safe for concurrent use since every field is itself safe for
// concurrent use.
type Dependencies struct {
	Logger      arbor.ILogger
	Broadcaster interfaces.Broadcaster
	Cache       interfaces.CacheService
	Tracker     interfaces.CompletionTracker
	Queues      interfaces.QueueRegistry
	Repository  interfaces.Repository
	Objects     interfaces.ObjectStorage
}

// Base provides the Retryable/Priority defaults concrete actions embed so
// they only need to override what differs.
type Base struct {
	name      string
	retryable bool
	priority  int
}

// NewBase constructs a Base with the given name and reasonable defaults
// (retryable=true, priority=0).
func NewBase(name string) Base {
	return Base{name: name, retryable: true, priority: 0}
}

func (b Base) Name() string    { return b.name }
func (b Base) Retryable() bool { return b.retryable }
func (b Base) Priority() int   { return b.priority }

// WithNonRetryable returns a copy of b marked non-retryable.
func (b Base) WithNonRetryable() Base {
	b.retryable = false
	return b
}

// WithPriority returns a copy of b with the given priority.
func (b Base) WithPriority(p int) Base {
	b.priority = p
	return b
}
