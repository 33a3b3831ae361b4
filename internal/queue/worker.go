package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/awehrman/peas/internal/action"
	"github.com/awehrman/peas/internal/interfaces"
	"github.com/awehrman/peas/internal/models"
	"github.com/awehrman/peas/internal/pipeline"
	"github.com/ternarybob/arbor"
)

const (
	defaultBackoffBase = time.Second
	defaultMaxBackoff  = 60 * time.Second
	defaultMaxAttempts = 3
)

// PipelineBuilder builds the pipeline a Worker runs for one job's options
// (most queues pass one that ignores its argument and returns a fixed
// pipeline; the note worker branches on SkipFollowupTasks).
type PipelineBuilder func(opts models.PipelineOptions) (action.Pipeline, error)

// OptionsDecoder extracts a job's PipelineOptions from its raw payload. The
// default decoder always returns the zero value; the note worker overrides
// it to pull NotePipelineData.Options out of the payload, since that queue's
// pipeline shape depends on SkipFollowupTasks.
type OptionsDecoder func(payload []byte) models.PipelineOptions

// Worker is a long-running entity bound to one queue and a pipeline
// builder. It pulls jobs with bounded parallelism, runs each job's
// pipeline sequentially and fail-fast, and applies the retry/backoff/
// dead-letter policy on failure.
type Worker struct {
	Name          string
	Queue         interfaces.Queue
	Build         PipelineBuilder
	DecodeOptions OptionsDecoder
	Logger        arbor.ILogger
	DeadLetters   *DeadLetterStore
	Broadcaster   interfaces.Broadcaster

	BackoffBase time.Duration
	MaxBackoff  time.Duration
	MaxAttempts int
	Concurrency int

	stop    chan struct{}
	stopped chan struct{}
	wg      sync.WaitGroup
}

// NewWorker constructs a Worker with a conservative default backoff policy
// (base 1s, max 60s, 3 attempts) and a single puller goroutine.
func NewWorker(name string, q interfaces.Queue, build PipelineBuilder, logger arbor.ILogger, deadLetters *DeadLetterStore, broadcaster interfaces.Broadcaster) *Worker {
	return &Worker{
		Name:          name,
		Queue:         q,
		Build:         build,
		DecodeOptions: decodeOptions,
		Logger:        logger,
		DeadLetters:   deadLetters,
		Broadcaster:   broadcaster,
		BackoffBase:   defaultBackoffBase,
		MaxBackoff:    defaultMaxBackoff,
		MaxAttempts:   defaultMaxAttempts,
		Concurrency:   1,
	}
}

// Start launches Concurrency puller goroutines against ctx.
func (w *Worker) Start(ctx context.Context) {
	w.stop = make(chan struct{})
	w.stopped = make(chan struct{})

	concurrency := w.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.loop(ctx)
	}

	go func() {
		w.wg.Wait()
		close(w.stopped)
	}()
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.Queue.Pull(ctx)
		if err != nil {
			if pipeline.KindOf(err) == pipeline.KindCancelled {
				return
			}
			if w.Logger != nil {
				w.Logger.Warn().Err(err).Str("queue", w.Queue.Name()).Msg("Failed to pull job")
			}
			continue
		}

		w.process(ctx, job)
	}
}

// process runs job's pipeline to completion or first failure, then applies
// the retry/dead-letter policy.
func (w *Worker) process(ctx context.Context, job *models.Job) {
	decode := w.DecodeOptions
	if decode == nil {
		decode = decodeOptions
	}
	opts := decode(job.Payload)
	pipe, err := w.Build(opts)
	if err != nil {
		w.fail(ctx, job, err)
		return
	}

	actx := models.ActionContext{
		JobID:         job.JobID,
		AttemptNumber: job.AttemptNumber,
		RetryCount:    job.AttemptNumber - 1,
		QueueName:     job.QueueName,
		WorkerName:    w.Name,
		Operation:     job.ActionName,
		StartTime:     time.Now(),
	}

	var data any = job.Payload

	for _, a := range pipe {
		select {
		case <-ctx.Done():
			w.fail(ctx, job, pipeline.Cancelled(a.Name(), ctx.Err()))
			return
		default:
		}

		if err := a.ValidateInput(data); err != nil {
			w.fail(ctx, job, pipeline.InvalidInput(a.Name(), err))
			return
		}

		out, err := a.Execute(ctx, actx, data)
		if err != nil {
			if !a.Retryable() || !pipeline.Retryable(err) {
				w.fail(ctx, job, err)
				return
			}
			w.retry(ctx, job, err)
			return
		}
		data = out
	}

	if err := w.Queue.Ack(ctx, job.JobID); err != nil && w.Logger != nil {
		w.Logger.Warn().Err(err).Str("jobId", job.JobID).Msg("Failed to ack job")
	}
}

// retry applies step 4: exponential backoff capped at MaxBackoff, up to
// MaxAttempts; beyond that the job is dead-lettered.
func (w *Worker) retry(ctx context.Context, job *models.Job, cause error) {
	if job.AttemptNumber >= w.MaxAttempts {
		w.deadLetter(job, cause)
		w.broadcastFailed(ctx, job, cause)
		_ = w.Queue.Nack(ctx, job.JobID, "exhausted", 0)
		return
	}

	backoff := w.BackoffBase << uint(job.AttemptNumber-1)
	if backoff > w.MaxBackoff || backoff <= 0 {
		backoff = w.MaxBackoff
	}

	if err := w.Queue.Nack(ctx, job.JobID, cause.Error(), backoff); err != nil && w.Logger != nil {
		w.Logger.Warn().Err(err).Str("jobId", job.JobID).Msg("Failed to nack job for retry")
	}
}

// fail applies step 3: a non-retryable error ends the job immediately.
func (w *Worker) fail(ctx context.Context, job *models.Job, cause error) {
	if w.Logger != nil {
		w.Logger.Error().Err(cause).Str("jobId", job.JobID).Str("queue", w.Queue.Name()).Msg("Job failed")
	}
	if pipeline.KindOf(cause) != pipeline.KindCancelled {
		w.broadcastFailed(ctx, job, cause)
	}
	_ = w.Queue.Nack(ctx, job.JobID, "fatal", 0)
}

// broadcastFailed emits a FAILED status event for job's importId, if the
// worker has a broadcaster and the payload decodes one. A payload that
// doesn't carry an importId (or isn't JSON) is silently skipped; broadcast
// failures never mask the underlying job failure.
func (w *Worker) broadcastFailed(ctx context.Context, job *models.Job, cause error) {
	if w.Broadcaster == nil {
		return
	}
	importID := decodeImportID(job.Payload)
	if importID == "" {
		return
	}
	_, err := w.Broadcaster.AddStatusEventAndBroadcast(ctx, models.StatusEvent{
		ImportID: importID,
		Status:   models.StatusFailed,
		Message:  cause.Error(),
		Context:  job.ActionName,
	})
	if err != nil && w.Logger != nil {
		w.Logger.Warn().Err(err).Str("jobId", job.JobID).Msg("Failed to broadcast FAILED event")
	}
}

// decodeImportID pulls importId out of a job's raw payload regardless of
// its concrete shape (NotePipelineData, LineJobData, CompletionCheckJobData,
// ...): every payload JSON-encodes an "importId" field under that key.
func decodeImportID(payload []byte) string {
	var d struct {
		ImportID string `json:"importId"`
	}
	if err := json.Unmarshal(payload, &d); err != nil {
		return ""
	}
	return d.ImportID
}

func (w *Worker) deadLetter(job *models.Job, cause error) {
	if w.DeadLetters == nil {
		return
	}
	w.DeadLetters.Record(models.DeadLetterRecord{
		QueueName:     job.QueueName,
		JobID:         job.JobID,
		Attempts:      job.AttemptNumber,
		LastError:     cause.Error(),
		LastAttemptAt: time.Now(),
	})
}

// Stop signals every puller goroutine to stop pulling new jobs, then waits
// (bounded by ctx) for in-flight pipelines to finish their current action
//.
func (w *Worker) Stop(ctx context.Context) error {
	if w.stop == nil {
		return nil
	}
	close(w.stop)

	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return pipeline.Timeout("worker.Stop", ctx.Err())
	}
}

// decodeOptions is a hook point: a job's payload carries its own
// PipelineOptions, decoded by the worker that knows its concrete payload
// shape. The default no-ops; the note worker overrides Build to decode
// NotePipelineData itself rather than relying on this function.
func decodeOptions(payload []byte) models.PipelineOptions {
	return models.PipelineOptions{}
}
