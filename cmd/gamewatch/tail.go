package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gamewatch/gamewatch-go/pkg/gamewatch"
)

var (
	// tail flags
	tailParsers      parserConfig
	tailFile         string
	tailLogDir       string
	tailGlob         string
	tailFormat       string
	tailTypes        []string
	tailExcludeTypes []string
	tailFromStart    bool
	tailOffset       int64
	tailWait         bool
	tailBatch        bool
	tailPoll         bool
	tailSince        string
	tailNoTimeGate   bool
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow a game log and output events",
	Long: `Follow a game log file and output parsed events as they are written.

Events are output as JSON Lines by default (one JSON object per line).
Without --file the newest log in --log-dir (or $GAMEWATCH_LOGDIR) is used.

Examples:
  # Follow a task log
  gamewatch tail --game tasklog --file ~/game/logs/tasks.log

  # Newest log in a directory, human-readable
  gamewatch tail --game session --log-dir ~/game/logs --format pretty

  # Replay the whole file, then keep following
  gamewatch tail --game combatlog --file WoWCombatLog.txt --from-start

  # Custom patterns next to a built-in parser
  gamewatch tail --game session --file client.log --pattern loot.yaml

  # Only kills and deaths
  gamewatch tail --game combatlog --file WoWCombatLog.txt --types kill,death`,
	RunE: runTail,
}

func init() {
	addParserFlags(tailCmd, &tailParsers)

	tailCmd.Flags().StringVar(&tailFile, "file", "",
		"Log file to follow")
	tailCmd.Flags().StringVarP(&tailLogDir, "log-dir", "d", "",
		"Directory whose newest log is followed")
	tailCmd.Flags().StringVar(&tailGlob, "glob", "*.log",
		"File pattern used with --log-dir")
	tailCmd.Flags().StringVarP(&tailFormat, "format", "f", "jsonl",
		"Output format: jsonl, pretty")
	tailCmd.Flags().StringSliceVarP(&tailTypes, "types", "t", nil,
		"Event types to show (comma-separated)")
	tailCmd.Flags().StringSliceVar(&tailExcludeTypes, "exclude-types", nil,
		"Event types to hide (comma-separated)")

	tailCmd.Flags().BoolVar(&tailFromStart, "from-start", false,
		"Read the file from the beginning (disables the time gate unless --since is set)")
	tailCmd.Flags().Int64Var(&tailOffset, "offset", 0,
		"Start reading at this byte offset")
	tailCmd.Flags().BoolVar(&tailWait, "wait", false,
		"Wait for the log file to be created")
	tailCmd.Flags().BoolVar(&tailBatch, "batch", false,
		"Deliver lines in batches once per poll interval")
	tailCmd.Flags().BoolVar(&tailPoll, "poll", false,
		"Poll the file instead of using filesystem notifications")
	tailCmd.Flags().StringVar(&tailSince, "since", "",
		"Drop events before this time (RFC3339)")
	tailCmd.Flags().BoolVar(&tailNoTimeGate, "no-time-gate", false,
		"Deliver events regardless of their timestamps")

	tailCmd.MarkFlagsMutuallyExclusive("file", "log-dir")
	tailCmd.MarkFlagsMutuallyExclusive("from-start", "offset")
	registerEventTypeCompletion(tailCmd, "types")
	registerEventTypeCompletion(tailCmd, "exclude-types")
	registerGameCompletion(tailCmd)

	rootCmd.AddCommand(tailCmd)
}

// tailOptions turns the tail flags into watcher options.
func tailOptions() ([]gamewatch.Option, error) {
	if err := validateFormat(tailFormat); err != nil {
		return nil, err
	}
	include, exclude, err := kindFilters(tailTypes, tailExcludeTypes)
	if err != nil {
		return nil, err
	}

	opts := []gamewatch.Option{
		gamewatch.WithLogGlob(tailGlob),
		gamewatch.WithWaitForCreation(tailWait),
		gamewatch.WithBatch(tailBatch),
		gamewatch.WithPolling(tailPoll),
		gamewatch.WithIncludeKinds(include...),
		gamewatch.WithExcludeKinds(exclude...),
	}
	switch {
	case tailFile != "":
		opts = append(opts, gamewatch.WithLogFile(tailFile))
	case tailLogDir != "":
		opts = append(opts, gamewatch.WithLogDir(tailLogDir))
	}
	if tailFromStart {
		opts = append(opts, gamewatch.WithReplayFromStart())
	}
	if tailOffset > 0 {
		opts = append(opts, gamewatch.WithSeekOffset(tailOffset))
	}

	gate := !tailNoTimeGate
	if tailSince != "" {
		since, err := time.Parse(time.RFC3339, tailSince)
		if err != nil {
			return nil, fmt.Errorf("invalid --since: %w", err)
		}
		opts = append(opts, gamewatch.WithThreshold(since))
	} else if tailFromStart {
		gate = false
	}
	opts = append(opts, gamewatch.WithTimeGate(gate))
	return opts, nil
}

func runTail(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger(os.Stderr, verbose)

	opts, err := tailOptions()
	if err != nil {
		return err
	}

	parser, cleanup, err := buildParser(ctx, tailParsers, logger)
	defer cleanup()
	if err != nil {
		return err
	}
	opts = append(opts, gamewatch.WithParser(parser), gamewatch.WithLogger(logger))

	w, err := gamewatch.NewWatcher(opts...)
	if err != nil {
		return err
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	out := newEventWriter(tailFormat, cmd.OutOrStdout(), func(error) { cancel() })
	w.NotifyOnAny(out.Handle)

	if err := w.Start(ctx); err != nil {
		return err
	}
	logger.Info("following", "path", w.Path())
	w.Wait()
	return out.Err()
}
