package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// queueNames lists the pipeline's registered queues, in fan-out order, for
// the startup banner's capability summary.
var queueNames = []string{
	"note", "ingredient", "instruction", "image", "source",
	"ingredient-completion", "instruction-completion",
}

// PrintBanner displays the application startup banner.
func PrintBanner(config *Config, logger arbor.ILogger) {
	version := GetFullVersion()
	serviceURL := fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)

	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(80)

	fmt.Printf("\n")
	b.PrintTopLine()
	b.PrintCenteredText("PEAS")
	b.PrintCenteredText("Recipe Ingestion Pipeline")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", version, 15)
	b.PrintKeyValue("Environment", config.Environment, 15)
	b.PrintKeyValue("Service URL", serviceURL, 15)
	b.PrintKeyValue("Storage", config.Storage.Badger.Path, 15)
	b.PrintBottomLine()
	fmt.Printf("\n")

	logger.Info().
		Str("version", version).
		Str("environment", config.Environment).
		Str("service_url", serviceURL).
		Str("badger_path", config.Storage.Badger.Path).
		Msg("Application started")

	fmt.Printf("Configuration:\n")
	fmt.Printf("   - Badger path: %s\n", config.Storage.Badger.Path)
	fmt.Printf("   - Web Interface: %s\n", serviceURL)

	logFilePath := ""
	if loggerWithPath, ok := interface{}(logger).(interface{ GetLogFilePath() string }); ok {
		logFilePath = loggerWithPath.GetLogFilePath()
		if logFilePath != "" {
			fmt.Printf("   - Log File: %s\n", logFilePath)
		}
	}
	fmt.Printf("\n")

	logger.Info().
		Str("log_file", logFilePath).
		Str("objects_root", config.Objects.Root).
		Bool("duplicate_detection_enabled", config.Duplicate.Enabled).
		Msg("Configuration loaded")

	printCapabilities(config, logger)
	fmt.Printf("\n")
}

// printCapabilities displays the queues, storage, and optional features
// this process is running with.
func printCapabilities(config *Config, logger arbor.ILogger) {
	fmt.Printf("Enabled capabilities:\n")
	queueKind := "in-memory"
	if config.Queue.Durable {
		queueKind = "durable (SQLite-backed)"
	}
	fmt.Printf("   - %d %s queues: %v\n", len(queueNames), queueKind, queueNames)
	fmt.Printf("   - Badger-backed repository and action cache\n")
	fmt.Printf("   - Local object storage at %s\n", config.Objects.Root)

	if config.Duplicate.Enabled {
		fmt.Printf("   - LLM-assisted duplicate-title detection (%s)\n", config.Duplicate.Model)
	} else {
		fmt.Printf("   - Exact-title duplicate detection only (LLM-assisted check disabled)\n")
	}

	logger.Info().
		Strs("queues", queueNames).
		Str("objects_root", config.Objects.Root).
		Bool("duplicate_detection_enabled", config.Duplicate.Enabled).
		Msg("System capabilities")
}

// PrintShutdownBanner displays the application shutdown banner.
func PrintShutdownBanner(logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(42)

	b.PrintTopLine()
	b.PrintCenteredText("SHUTTING DOWN")
	b.PrintCenteredText("PEAS")
	b.PrintBottomLine()
	fmt.Println()

	logger.Info().Msg("Application shutting down")
}

// PrintColorizedMessage prints a message with specified color and logs through Arbor.
func PrintColorizedMessage(color, message string, logger arbor.ILogger) {
	fmt.Printf("%s%s%s\n", color, message, banner.ColorReset)
}

// PrintSuccess prints a success message in green and logs it.
func PrintSuccess(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorGreen, fmt.Sprintf("[ok] %s", message), logger)
	logger.Info().Str("type", "success").Msg(message)
}

// PrintError prints an error message in red and logs it.
func PrintError(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorRed, fmt.Sprintf("[error] %s", message), logger)
	logger.Error().Str("type", "error").Msg(message)
}

// PrintWarning prints a warning message in yellow and logs it.
func PrintWarning(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorYellow, fmt.Sprintf("[warn] %s", message), logger)
	logger.Warn().Str("type", "warning").Msg(message)
}

// PrintInfo prints an info message in cyan and logs it.
func PrintInfo(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorCyan, fmt.Sprintf("[info] %s", message), logger)
	logger.Info().Str("type", "info").Msg(message)
}
