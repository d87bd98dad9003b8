package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gamewatch/gamewatch-go/internal/plugin"
	"github.com/gamewatch/gamewatch-go/pkg/gamewatch"
	"github.com/gamewatch/gamewatch-go/pkg/gamewatch/pattern"
	"github.com/spf13/cobra"
)

// parserConfig collects the flags that select line parsers.
type parserConfig struct {
	Game          string
	Year          int
	Patterns      []string
	Plugins       []string
	PluginTimeout time.Duration
}

// buildParser builds the line parser for one file: the built-in game parser
// (if any) followed by every pattern file and plugin, all run on each line.
// A failing plugin does not hide events from the other parsers.
// The returned cleanup is always non-nil, even on error.
func buildParser(ctx context.Context, cfg parserConfig, logger *slog.Logger) (gamewatch.Parser, func(), error) {
	noop := func() {}

	if cfg.Game == "" && len(cfg.Patterns) == 0 && len(cfg.Plugins) == 0 {
		return nil, noop, fmt.Errorf("nothing to parse with: pass --game, --pattern or --plugin (games: %v)", gamewatch.BuiltinNames())
	}

	var parsers []gamewatch.Parser
	if cfg.Game != "" {
		p, err := gamewatch.NewBuiltinParser(cfg.Game, gamewatch.BuiltinOptions{Year: cfg.Year})
		if err != nil {
			return nil, noop, err
		}
		parsers = append(parsers, p)
	}

	for i, path := range cfg.Patterns {
		rp, err := pattern.NewRegexParserFromFile(path)
		if err != nil {
			// pattern errors never carry the path
			return nil, noop, fmt.Errorf("pattern file %d: %w", i+1, err)
		}
		parsers = append(parsers, rp)
	}

	var loaded []*plugin.Plugin
	cleanup := func() {
		for _, p := range loaded {
			if err := p.Close(); err != nil {
				logger.Warn("closing plugin", "error", err)
			}
		}
	}

	opts := []plugin.Option{plugin.WithLogger(logger)}
	if cfg.PluginTimeout > 0 {
		opts = append(opts, plugin.WithTimeout(cfg.PluginTimeout))
	}
	for i, path := range cfg.Plugins {
		wp, err := plugin.Load(ctx, path, opts...)
		if err != nil {
			cleanup()
			return nil, noop, fmt.Errorf("plugin file %d: %w", i+1, err)
		}
		loaded = append(loaded, wp)
		parsers = append(parsers, wp)
	}

	if len(parsers) == 1 {
		return parsers[0], cleanup, nil
	}
	return &gamewatch.ParserChain{
		Mode:    gamewatch.ChainContinueOnError,
		Parsers: parsers,
	}, cleanup, nil
}

// addParserFlags registers the parser selection flags shared by tail and parse.
func addParserFlags(cmd *cobra.Command, cfg *parserConfig) {
	f := cmd.Flags()
	f.StringVarP(&cfg.Game, "game", "g", "",
		fmt.Sprintf("Built-in log parser (%v)", gamewatch.BuiltinNames()))
	f.IntVar(&cfg.Year, "year", 0,
		"Year for log formats whose timestamps omit it (default: current year)")
	f.StringArrayVar(&cfg.Patterns, "pattern", nil,
		"YAML pattern file (repeatable)")
	f.StringArrayVar(&cfg.Plugins, "plugin", nil,
		"Wasm parser plugin (repeatable)")
	f.DurationVar(&cfg.PluginTimeout, "plugin-timeout", 0,
		fmt.Sprintf("Per-line plugin timeout (default %s)", plugin.DefaultTimeout))
}
