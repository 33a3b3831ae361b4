package container

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/awehrman/peas/internal/common"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) *common.Config {
	t.Helper()
	dir, err := os.MkdirTemp("", "container-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = dir + "/badger"
	cfg.Objects.Root = dir + "/objects"
	cfg.Queue.Capacity = 16
	cfg.Queue.Concurrency = 1
	return cfg
}

func TestNewRegistersEveryQueueAndWorker(t *testing.T) {
	c, err := New(context.Background(), newTestConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	require.Len(t, c.workers, len(queueNames))
	for _, name := range queueNames {
		_, ok := c.Queues.Queue(name)
		require.True(t, ok, "queue %q should be registered", name)
	}
	require.ElementsMatch(t, []string{
		"clean_html", "parse_html", "save_note", "schedule_all_followup_tasks",
		"schedule_ingredient_lines", "schedule_instruction_lines", "schedule_images",
		"process_source", "check_duplicates", "wait_for_categorization",
		"mark_note_worker_completed", "check_ingredient_completion",
		"check_instruction_completion", "parse_ingredient_line", "save_ingredient_line",
		"track_pattern", "format_instruction_line", "save_instruction_line", "process_image",
	}, c.Factory.Names())
}

func TestNewDurableModeBacksQueuesWithGoqite(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Queue.Durable = true
	cfg.Queue.SQLitePath = ":memory:"

	c, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	require.NotNil(t, c.sqliteDB)
}

func TestStartAndCloseIsIdempotentAndGraceful(t *testing.T) {
	c, err := New(context.Background(), newTestConfig(t), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))

	snap, err := c.Diagnostics(time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, snap)

	cancel()
	require.NoError(t, c.Close(context.Background()))
}
