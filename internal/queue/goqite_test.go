package queue

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/awehrman/peas/internal/models"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGoqiteQueueAddPullAck(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	q, err := NewGoqiteQueue(ctx, db, "ingredient")
	require.NoError(t, err)

	require.NoError(t, q.Add(ctx, "parse_ingredient_line", []byte(`{"noteId":"n1"}`), "n1-ingredient-0", nil))

	job, err := q.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, "n1-ingredient-0", job.JobID)
	require.Equal(t, "parse_ingredient_line", job.ActionName)

	require.NoError(t, q.Ack(ctx, job.JobID))
}

func TestGoqiteQueueDedupeWindowSkipsDuplicateAdd(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	q, err := NewGoqiteQueue(ctx, db, "note")
	require.NoError(t, err)

	opts := &models.EnqueueOptions{DedupeWindow: time.Minute}
	require.NoError(t, q.Add(ctx, "clean_html", []byte("a"), "dup", opts))
	require.NoError(t, q.Add(ctx, "clean_html", []byte("b"), "dup", opts))

	job, err := q.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("a"), job.Payload)
}

func TestGoqiteQueueNackRedelivers(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	q, err := NewGoqiteQueue(ctx, db, "instruction")
	require.NoError(t, err)

	require.NoError(t, q.Add(ctx, "format_instruction_line", []byte("x"), "job-1", nil))
	job, err := q.Pull(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Nack(ctx, job.JobID, "transient", time.Millisecond))

	redelivered, err := q.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, "job-1", redelivered.JobID)
	require.NoError(t, q.Ack(ctx, redelivered.JobID))
}
