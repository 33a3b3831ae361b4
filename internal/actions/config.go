package actions

import "time"

// CompletionConfig configures the Completion Tracker's one explicit
// Open Question decision: wait_for_categorization's timeout and the
// completion-check sentinel's re-enqueue backoff, both pinned to
// production defaults but kept configurable so tests can override them.
type CompletionConfig struct {
	// CategorizationTimeout bounds wait_for_categorization (default 60s).
	CategorizationTimeout time.Duration
	// CompletionCheckBackoffBase is the sentinel's initial re-enqueue
	// delay (default 100ms, doubling, capped at CompletionCheckMaxBackoff).
	CompletionCheckBackoffBase time.Duration
	// CompletionCheckMaxBackoff caps the sentinel's re-enqueue delay
	// (default 5s).
	CompletionCheckMaxBackoff time.Duration
	// CompletionCheckMaxRetries caps the sentinel's re-enqueue count
	// (default 60).
	CompletionCheckMaxRetries int
}

// DefaultCompletionConfig returns the pinned production defaults.
func DefaultCompletionConfig() CompletionConfig {
	return CompletionConfig{
		CategorizationTimeout:      60 * time.Second,
		CompletionCheckBackoffBase: 100 * time.Millisecond,
		CompletionCheckMaxBackoff:  5 * time.Second,
		CompletionCheckMaxRetries:  60,
	}
}
