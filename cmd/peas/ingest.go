package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/awehrman/peas/internal/app"
	"github.com/awehrman/peas/internal/models"
)

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	var configFiles configPaths
	fs.Var(&configFiles, "config", "Configuration file path (repeatable, later files override earlier ones)")
	fs.Var(&configFiles, "c", "Configuration file path (shorthand)")
	file := fs.String("file", "", "Path to the HTML note export to ingest (required)")
	source := fs.String("source", "", "Override source attribution for the note")
	timeout := fs.Duration("timeout", 2*time.Minute, "How long to wait for the note to clear the pipeline")
	skipFollowups := fs.Bool("skip-followups", false, "Skip scheduling ingredient/instruction/image/source fan-out")
	fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "peas ingest: -file is required")
		os.Exit(1)
	}

	cfg, logger := bootstrap(configFiles, 0, "")

	content, err := os.ReadFile(*file)
	if err != nil {
		logger.Fatal().Err(err).Str("file", *file).Msg("Failed to read note file")
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	importID := uuid.NewString()
	data := models.NotePipelineData{
		Content:  string(content),
		ImportID: importID,
		Source:   *source,
		Options:  models.PipelineOptions{SkipFollowupTasks: *skipFollowups},
	}
	payload, err := json.Marshal(data)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to marshal note payload")
	}

	noteQueue, ok := application.Container.Queues.Queue(string(models.KindNote))
	if !ok {
		logger.Fatal().Msg("Note queue is not registered")
	}

	done := make(chan models.StatusEvent, 1)
	unsubscribe := application.Container.Broadcaster.Subscribe(importID, func(event models.StatusEvent) {
		if event.Status != models.StatusFailed && (event.Context != "mark_note_worker_completed" || event.Status != models.StatusCompleted) {
			return
		}
		select {
		case done <- event:
		default:
		}
	})
	defer unsubscribe()

	jobID := importID + "-note"
	if err := noteQueue.Add(context.Background(), "clean_html", payload, jobID, nil); err != nil {
		logger.Fatal().Err(err).Msg("Failed to enqueue note")
	}

	logger.Info().Str("importId", importID).Str("file", *file).Msg("Note submitted")

	select {
	case event := <-done:
		if event.Status == models.StatusFailed {
			logger.Error().Str("importId", importID).Str("message", event.Message).Msg("Note ingestion failed")
			os.Exit(1)
		}
		logger.Info().Str("importId", importID).Str("noteId", event.NoteID).Msg("Note ingestion complete")
	case <-time.After(*timeout):
		logger.Error().Str("importId", importID).Dur("timeout", *timeout).Msg("Timed out waiting for note to complete")
		os.Exit(1)
	}
}
