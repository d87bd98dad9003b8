package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gamewatch/gamewatch-go/pkg/gamewatch"
)

var (
	// parse flags
	parseParsers      parserConfig
	parseIncludeTypes []string
	parseExcludeTypes []string
	parseSince        string
	parseUntil        string
	parseFormat       string
	parseStopOnError  bool
)

var parseCmd = &cobra.Command{
	Use:   "parse FILE...",
	Short: "Parse game log files (batch mode)",
	Long: `Parse whole log files and output their events.

Unlike 'tail', this command reads finished files without following them,
and no time gate applies. Files are parsed in the order given, each with a
fresh parser.

Examples:
  # Every event in a session log
  gamewatch parse --game session client.log

  # A time window
  gamewatch parse --game tasklog --since 2024-01-15T12:00:00Z --until 2024-01-16T00:00:00Z tasks.log

  # Only custom pattern events
  gamewatch parse --pattern loot.yaml --include-types custom client.log`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParse,
}

func init() {
	addParserFlags(parseCmd, &parseParsers)

	parseCmd.Flags().StringSliceVar(&parseIncludeTypes, "include-types", nil,
		"Event types to include (comma-separated)")
	parseCmd.Flags().StringSliceVar(&parseExcludeTypes, "exclude-types", nil,
		"Event types to exclude (comma-separated)")
	parseCmd.Flags().StringVar(&parseSince, "since", "",
		"Only events at/after timestamp (RFC3339 format, e.g., 2024-01-15T12:00:00Z)")
	parseCmd.Flags().StringVar(&parseUntil, "until", "",
		"Only events before timestamp (RFC3339 format)")
	parseCmd.Flags().StringVarP(&parseFormat, "format", "f", "jsonl",
		"Output format: jsonl, pretty")
	parseCmd.Flags().BoolVar(&parseStopOnError, "stop-on-error", false,
		"Stop on first error instead of skipping")

	registerEventTypeCompletion(parseCmd, "include-types")
	registerEventTypeCompletion(parseCmd, "exclude-types")
	registerGameCompletion(parseCmd)

	rootCmd.AddCommand(parseCmd)
}

// parseTimeRange parses the --since/--until pair. Empty values stay zero.
func parseTimeRange(since, until string) (time.Time, time.Time, error) {
	var s, u time.Time
	var err error
	if since != "" {
		if s, err = time.Parse(time.RFC3339, since); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --since: %w", err)
		}
	}
	if until != "" {
		if u, err = time.Parse(time.RFC3339, until); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --until: %w", err)
		}
	}
	if !s.IsZero() && !u.IsZero() && !s.Before(u) {
		return time.Time{}, time.Time{}, errors.New("--since must be before --until")
	}
	return s, u, nil
}

func runParse(cmd *cobra.Command, args []string) error {
	if err := validateFormat(parseFormat); err != nil {
		return err
	}
	include, exclude, err := kindFilters(parseIncludeTypes, parseExcludeTypes)
	if err != nil {
		return err
	}
	since, until, err := parseTimeRange(parseSince, parseUntil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger(os.Stderr, verbose)
	opts := []gamewatch.ParseOption{
		gamewatch.WithParseFilter(include, exclude),
		gamewatch.WithParseTimeRange(since, until),
		gamewatch.WithParseStopOnError(parseStopOnError),
		gamewatch.WithParseLogger(logger),
	}

	for _, path := range args {
		if err := parseOne(ctx, path, logger, opts, cmd.OutOrStdout()); err != nil {
			return err
		}
	}
	return nil
}

// parseOne parses one file with its own parser instance.
func parseOne(ctx context.Context, path string, logger *slog.Logger, opts []gamewatch.ParseOption, out io.Writer) error {
	parser, cleanup, err := buildParser(ctx, parseParsers, logger)
	defer cleanup()
	if err != nil {
		return err
	}

	for ev, err := range gamewatch.ParseFileSeq(ctx, path, parser, opts...) {
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := OutputEvent(parseFormat, ev, out); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
	}
	return nil
}
