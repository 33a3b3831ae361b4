package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/awehrman/peas/internal/models"
	"github.com/awehrman/peas/internal/pipeline"
	"maragu.dev/goqite"
)

var errNoJobID = errors.New("jobId is required")

// GoqiteQueue is the optional on-disk durable queue, backed by a
// goqite.Queue over a caller-supplied *sql.DB. Deployments that want queue
// state to survive a restart pass one (any database/sql driver) instead
// of using MemoryQueue.
type GoqiteQueue struct {
	name string
	q    *goqite.Queue

	mu      sync.Mutex
	dedupe  map[string]time.Time
	pending map[string]pendingDelivery
}

// pendingDelivery is what an in-flight goqite message needs on Nack: its
// message ID (to Delete the delivered copy) and the wireJob it decoded to
// (to re-Send with an incremented AttemptNumber, since goqite has no
// in-place message update).
type pendingDelivery struct {
	id goqite.ID
	wj wireJob
}

// NewGoqiteQueue creates the goqite tables (if absent) and returns a queue
// named name backed by db.
func NewGoqiteQueue(ctx context.Context, db *sql.DB, name string) (*GoqiteQueue, error) {
	if err := goqite.Setup(ctx, db); err != nil && !strings.Contains(err.Error(), "already exists") {
		return nil, pipeline.RepositoryFailure("goqite.Setup", err)
	}
	q := goqite.New(goqite.NewOpts{DB: db, Name: name})
	return &GoqiteQueue{
		name:    name,
		q:       q,
		dedupe:  make(map[string]time.Time),
		pending: make(map[string]pendingDelivery),
	}, nil
}

func (g *GoqiteQueue) Name() string { return g.name }

type wireJob struct {
	JobID         string                 `json:"jobId"`
	AttemptNumber int                    `json:"attemptNumber"`
	ActionName    string                 `json:"actionName"`
	Payload       []byte                 `json:"payload"`
	EnqueuedAt    time.Time              `json:"enqueuedAt"`
	Options       *models.EnqueueOptions `json:"options,omitempty"`
}

func (g *GoqiteQueue) Add(ctx context.Context, actionName string, payload []byte, jobID string, opts *models.EnqueueOptions) error {
	if jobID == "" {
		return pipeline.InvalidInput("goqiteQueue.Add", errNoJobID)
	}

	now := time.Now()
	g.mu.Lock()
	window := time.Duration(0)
	if opts != nil {
		window = opts.DedupeWindow
	}
	if window > 0 {
		if prev, ok := g.dedupe[jobID]; ok && now.Sub(prev) < window {
			g.mu.Unlock()
			return nil
		}
	}
	if _, inFlight := g.pending[jobID]; inFlight {
		g.mu.Unlock()
		return nil
	}
	g.dedupe[jobID] = now
	g.mu.Unlock()

	wj := wireJob{
		JobID:         jobID,
		AttemptNumber: 1,
		ActionName:    actionName,
		Payload:       payload,
		EnqueuedAt:    now,
		Options:       opts,
	}
	body, err := json.Marshal(wj)
	if err != nil {
		return pipeline.InvalidInput("goqiteQueue.Add", err)
	}

	var delay time.Duration
	if opts != nil {
		delay = opts.Delay
	}
	if err := g.q.Send(ctx, goqite.Message{Body: body, Delay: delay}); err != nil {
		return pipeline.TransientIO("goqiteQueue.Add", err)
	}
	return nil
}

func (g *GoqiteQueue) Pull(ctx context.Context) (*models.Job, error) {
	for {
		msg, err := g.q.Receive(ctx)
		if err != nil {
			return nil, pipeline.TransientIO("goqiteQueue.Pull", err)
		}
		if msg == nil {
			select {
			case <-ctx.Done():
				return nil, pipeline.Cancelled("goqiteQueue.Pull", ctx.Err())
			case <-time.After(200 * time.Millisecond):
				continue
			}
		}

		var wj wireJob
		if err := json.Unmarshal(msg.Body, &wj); err != nil {
			_ = g.q.Delete(ctx, msg.ID)
			continue
		}

		g.mu.Lock()
		g.pending[wj.JobID] = pendingDelivery{id: msg.ID, wj: wj}
		g.mu.Unlock()

		return &models.Job{
			JobID:         wj.JobID,
			AttemptNumber: wj.AttemptNumber,
			ActionName:    wj.ActionName,
			QueueName:     g.name,
			Payload:       wj.Payload,
			EnqueuedAt:    wj.EnqueuedAt,
			Options:       wj.Options,
		}, nil
	}
}

func (g *GoqiteQueue) Ack(ctx context.Context, jobID string) error {
	g.mu.Lock()
	entry, ok := g.pending[jobID]
	delete(g.pending, jobID)
	g.mu.Unlock()
	if !ok {
		return nil
	}
	if err := g.q.Delete(ctx, entry.id); err != nil {
		return pipeline.TransientIO("goqiteQueue.Ack", err)
	}
	return nil
}

func (g *GoqiteQueue) Nack(ctx context.Context, jobID string, reason string, retryAfter time.Duration) error {
	g.mu.Lock()
	entry, ok := g.pending[jobID]
	delete(g.pending, jobID)
	delete(g.dedupe, jobID)
	g.mu.Unlock()
	if !ok {
		return nil
	}
	if err := g.q.Delete(ctx, entry.id); err != nil {
		return pipeline.TransientIO("goqiteQueue.Nack", err)
	}
	if retryAfter <= 0 {
		return nil
	}

	// goqite has no in-place message update, so redelivery is a fresh Send
	// of the same wireJob with AttemptNumber incremented and Delay set to
	// retryAfter, rather than Extend-ing the original (which left
	// AttemptNumber frozen at its Add-time value forever).
	entry.wj.AttemptNumber++
	body, err := json.Marshal(entry.wj)
	if err != nil {
		return pipeline.InvalidInput("goqiteQueue.Nack", err)
	}
	if err := g.q.Send(ctx, goqite.Message{Body: body, Delay: retryAfter}); err != nil {
		return pipeline.TransientIO("goqiteQueue.Nack", err)
	}
	return nil
}
