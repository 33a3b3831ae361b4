// Package container is the Dependency Container: it owns every singleton
// collaborator's lifetime (database, cache, broadcaster, tracker,
// repository, object storage, queues, workers, maintenance sweeper) and
// assembles them into the action.Dependencies bundle the factory binds to
// every registered action.
package container

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/ternarybob/arbor"

	"github.com/awehrman/peas/internal/action"
	"github.com/awehrman/peas/internal/actions"
	"github.com/awehrman/peas/internal/broadcaster"
	"github.com/awehrman/peas/internal/cache"
	"github.com/awehrman/peas/internal/common"
	"github.com/awehrman/peas/internal/diagnostics"
	"github.com/awehrman/peas/internal/maintenance"
	"github.com/awehrman/peas/internal/models"
	"github.com/awehrman/peas/internal/objectstorage"
	"github.com/awehrman/peas/internal/queue"
	"github.com/awehrman/peas/internal/repository"
	"github.com/awehrman/peas/internal/storage"
	"github.com/awehrman/peas/internal/tracker"
)

// queueNames lists every queue the container registers, in fan-out order:
// the note queue, the four per-kind line/attachment queues, and the two
// completion-check sentinel queues.
var queueNames = []string{
	string(models.KindNote),
	string(models.KindIngredient),
	string(models.KindInstruction),
	string(models.KindImage),
	string(models.KindSource),
	"ingredient-completion",
	"instruction-completion",
}

// Container holds every long-lived collaborator the pipeline needs, built
// once at startup and torn down once at shutdown.
type Container struct {
	Config *common.Config
	Logger arbor.ILogger

	DB          *storage.BadgerDB
	sqliteDB    *sql.DB
	Cache       *cache.Cache
	Broadcaster *broadcaster.Broadcaster
	Tracker     *tracker.Tracker
	Repository  *repository.Repository
	Objects     *objectstorage.LocalStorage
	Queues      *queue.Registry
	DeadLetters *queue.DeadLetterStore
	Factory     *action.Factory
	Sweeper     *maintenance.Sweeper

	workers []*queue.Worker
}

// New assembles every collaborator for cfg and registers the seven queues
// and their workers, but does not start anything — call Start to launch
// the workers and the maintenance sweeper.
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*Container, error) {
	c := &Container{
		Config:      cfg,
		Logger:      logger,
		Queues:      queue.NewRegistry(),
		DeadLetters: queue.NewDeadLetterStore(),
	}

	db, err := storage.Open(logger, cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("container: open badger: %w", err)
	}
	c.DB = db

	c.Cache = cache.New(db.Badger(), "cache:", logger)
	c.Broadcaster = broadcaster.New(logger)
	c.Tracker = tracker.New(logger)
	c.Repository = repository.New(db)

	objects := objectstorage.New(cfg.Objects.Root, cfg.Objects.BaseURL, []byte(cfg.Objects.SigningKey))
	if cfg.Objects.RateLimitPerSecond > 0 {
		objects = objects.WithRateLimit(cfg.Objects.RateLimitPerSecond, cfg.Objects.RateLimitBurst)
	}
	c.Objects = objects

	if err := c.registerQueues(ctx); err != nil {
		return nil, err
	}

	c.Factory = action.NewFactory(logger)
	if err := c.registerActions(); err != nil {
		return nil, err
	}

	if err := c.buildWorkers(); err != nil {
		return nil, err
	}

	deadLetterTTL := common.ParseDuration(cfg.Maintenance.DeadLetterTTL, 7*24*time.Hour)
	c.Sweeper = maintenance.NewSweeper(c.Cache, c.DeadLetters, deadLetterTTL, logger)
	return c, nil
}

// registerQueues registers the seven named queues, backed by MemoryQueue by
// default or by GoqiteQueue over QueueConfig.SQLitePath when Durable is set.
func (c *Container) registerQueues(ctx context.Context) error {
	if !c.Config.Queue.Durable {
		capacity := c.Config.Queue.Capacity
		if capacity <= 0 {
			capacity = 256
		}
		for _, name := range queueNames {
			c.Queues.Register(queue.NewMemoryQueue(name, capacity))
		}
		return nil
	}

	db, err := sql.Open("sqlite3", c.Config.Queue.SQLitePath)
	if err != nil {
		return fmt.Errorf("container: open queue sqlite db: %w", err)
	}
	c.sqliteDB = db

	for _, name := range queueNames {
		q, err := queue.NewGoqiteQueue(ctx, db, name)
		if err != nil {
			return fmt.Errorf("container: create durable queue %q: %w", name, err)
		}
		c.Queues.Register(q)
	}
	return nil
}

// registerActions builds the optional LLM-assisted duplicate detector from
// DuplicateConfig and registers every concrete action against c.Factory.
func (c *Container) registerActions() error {
	var detector actions.DuplicateDetector
	if c.Config.Duplicate.Enabled && c.Config.Duplicate.APIKey != "" {
		detector = actions.NewAnthropicDuplicateDetector(c.Config.Duplicate.APIKey, c.Config.Duplicate.Model)
	}
	regs := actions.Registrations(completionConfig(c.Config), detector)
	return action.RegisterActions(c.Factory, regs)
}

// completionConfig parses the TOML string-duration knobs in cfg.Completion
// into actions.CompletionConfig, falling back to production defaults on any
// empty or unparsable value.
func completionConfig(cfg *common.Config) actions.CompletionConfig {
	def := actions.DefaultCompletionConfig()
	out := actions.CompletionConfig{
		CategorizationTimeout:      common.ParseDuration(cfg.Completion.CategorizationTimeout, def.CategorizationTimeout),
		CompletionCheckBackoffBase: common.ParseDuration(cfg.Completion.CompletionCheckBackoffBase, def.CompletionCheckBackoffBase),
		CompletionCheckMaxBackoff:  common.ParseDuration(cfg.Completion.CompletionCheckMaxBackoff, def.CompletionCheckMaxBackoff),
		CompletionCheckMaxRetries:  cfg.Completion.CompletionCheckMaxRetries,
	}
	if out.CompletionCheckMaxRetries <= 0 {
		out.CompletionCheckMaxRetries = def.CompletionCheckMaxRetries
	}
	return out
}

// deps bundles the capability set every action constructor and pipeline
// builder receives.
func (c *Container) deps() *action.Dependencies {
	return &action.Dependencies{
		Logger:      c.Logger,
		Broadcaster: c.Broadcaster,
		Cache:       c.Cache,
		Tracker:     c.Tracker,
		Queues:      c.Queues,
		Repository:  c.Repository,
		Objects:     c.Objects,
	}
}

// buildWorkers constructs one Worker per registered queue, bound to the
// matching pipeline builder, and overrides the completion-check workers'
// retry policy to the configured backoff/attempt knobs (those sentinels
// retry on a much tighter loop than the default worker policy).
func (c *Container) buildWorkers() error {
	deps := c.deps()
	cc := completionConfig(c.Config)

	concurrency := c.Config.Queue.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	noteQueue, ok := c.Queues.Queue(string(models.KindNote))
	if !ok {
		return fmt.Errorf("container: note queue not registered")
	}
	noteWorker := queue.NewWorker(string(models.KindNote), noteQueue, func(opts models.PipelineOptions) (action.Pipeline, error) {
		return action.BuildNotePipeline(c.Factory, deps, opts)
	}, c.Logger, c.DeadLetters, c.Broadcaster)
	noteWorker.DecodeOptions = decodeNoteOptions
	noteWorker.Concurrency = concurrency
	c.workers = append(c.workers, noteWorker)

	ingredientWorker, err := c.fixedWorker(string(models.KindIngredient), concurrency, func() (action.Pipeline, error) {
		return action.BuildIngredientLinePipeline(c.Factory, deps)
	})
	if err != nil {
		return err
	}
	instructionWorker, err := c.fixedWorker(string(models.KindInstruction), concurrency, func() (action.Pipeline, error) {
		return action.BuildInstructionLinePipeline(c.Factory, deps)
	})
	if err != nil {
		return err
	}
	imageWorker, err := c.fixedWorker(string(models.KindImage), concurrency, func() (action.Pipeline, error) {
		return action.BuildImagePipeline(c.Factory, deps)
	})
	if err != nil {
		return err
	}
	sourceWorker, err := c.fixedWorker(string(models.KindSource), concurrency, func() (action.Pipeline, error) {
		return action.BuildSourcePipeline(c.Factory, deps)
	})
	if err != nil {
		return err
	}
	c.workers = append(c.workers, ingredientWorker, instructionWorker, imageWorker, sourceWorker)

	ingredientCompletion, err := c.fixedWorker("ingredient-completion", 1, func() (action.Pipeline, error) {
		return action.BuildIngredientCompletionCheckPipeline(c.Factory, deps)
	})
	if err != nil {
		return err
	}
	instructionCompletion, err := c.fixedWorker("instruction-completion", 1, func() (action.Pipeline, error) {
		return action.BuildInstructionCompletionCheckPipeline(c.Factory, deps)
	})
	if err != nil {
		return err
	}
	for _, w := range []*queue.Worker{ingredientCompletion, instructionCompletion} {
		w.BackoffBase = cc.CompletionCheckBackoffBase
		w.MaxBackoff = cc.CompletionCheckMaxBackoff
		w.MaxAttempts = cc.CompletionCheckMaxRetries
	}
	c.workers = append(c.workers, ingredientCompletion, instructionCompletion)

	return nil
}

// fixedWorker looks up name in the registry and wraps build (which ignores
// PipelineOptions) into a Worker.
func (c *Container) fixedWorker(name string, concurrency int, build func() (action.Pipeline, error)) (*queue.Worker, error) {
	q, ok := c.Queues.Queue(name)
	if !ok {
		return nil, fmt.Errorf("container: queue %q not registered", name)
	}
	w := queue.NewWorker(name, q, func(models.PipelineOptions) (action.Pipeline, error) {
		return build()
	}, c.Logger, c.DeadLetters, c.Broadcaster)
	w.Concurrency = concurrency
	return w, nil
}

// decodeNoteOptions pulls PipelineOptions out of a note job's raw
// NotePipelineData payload, so the note worker can branch on
// SkipFollowupTasks when it builds that job's pipeline.
func decodeNoteOptions(payload []byte) models.PipelineOptions {
	var d models.NotePipelineData
	if err := json.Unmarshal(payload, &d); err != nil {
		return models.PipelineOptions{}
	}
	return d.Options
}

// Start launches every worker and the maintenance sweeper, using the cron
// specs configured in MaintenanceConfig.
func (c *Container) Start(ctx context.Context) error {
	for _, w := range c.workers {
		w.Start(ctx)
	}
	cacheSweepSpec := c.Config.Maintenance.CacheSweepCron
	if cacheSweepSpec == "" {
		cacheSweepSpec = "@every 1m"
	}
	reaperSpec := c.Config.Maintenance.DeadLetterCron
	if reaperSpec == "" {
		reaperSpec = "@every 10m"
	}
	return c.Sweeper.Start(cacheSweepSpec, reaperSpec)
}

// Diagnostics returns a YAML-encoded operator snapshot of tracker and
// dead-letter state as of at.
func (c *Container) Diagnostics(at time.Time) ([]byte, error) {
	return diagnostics.Dump(diagnostics.Collect(at, c.Tracker, c.DeadLetters))
}

// Close stops every worker, the sweeper, and the underlying database, in
// reverse order of construction.
func (c *Container) Close(ctx context.Context) error {
	if c.Sweeper != nil {
		c.Sweeper.Stop()
	}
	for _, w := range c.workers {
		if w == nil {
			continue
		}
		if err := w.Stop(ctx); err != nil && c.Logger != nil {
			c.Logger.Warn().Err(err).Str("queue", w.Name).Msg("Failed to stop worker")
		}
	}
	if c.sqliteDB != nil {
		if err := c.sqliteDB.Close(); err != nil && c.Logger != nil {
			c.Logger.Warn().Err(err).Msg("Failed to close durable queue database")
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			return fmt.Errorf("container: close badger: %w", err)
		}
	}
	return nil
}
