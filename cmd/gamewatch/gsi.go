package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gamewatch/gamewatch-go/internal/safefile"
	"github.com/gamewatch/gamewatch-go/pkg/gamewatch"
	"github.com/gamewatch/gamewatch-go/pkg/gamewatch/event"
	"github.com/gamewatch/gamewatch-go/pkg/gamewatch/gsi"
)

var (
	// gsi flags
	gsiGame         string
	gsiArtifact     string
	gsiTemplate     string
	gsiAddr         string
	gsiPort         int
	gsiToken        string
	gsiTTL          time.Duration
	gsiGameRunning  bool
	gsiModes        []string
	gsiFormat       string
	gsiTypes        []string
	gsiExcludeTypes []string
)

const maxTemplateSize = 64 << 10

var gsiCmd = &cobra.Command{
	Use:   "gsi",
	Short: "Receive game-state snapshots and output match events",
	Long: `Run a local HTTP endpoint for game-state integration pushes and turn
the snapshots into match, round, kill, death and assist events.

The game is pointed at the endpoint through a config artifact written
to --artifact once the listener is bound. Flags override the
GAMEWATCH_GSI_* environment variables (ADDR, PORT, TOKEN, TTL,
BIND_ATTEMPTS).

Examples:
  # Write the cfg into the game's cfg directory and listen
  gamewatch gsi --artifact "$CSGO/cfg/gamestate_integration_gamewatch.cfg"

  # Fixed port and a shared token
  gamewatch gsi --artifact gsi.cfg --port 3000 --token s3cret --format pretty

  # The game is already running: reuse the port it was given last time
  gamewatch gsi --artifact gsi.cfg --game-running`,
	RunE: runGSI,
}

func init() {
	gsiCmd.Flags().StringVarP(&gsiGame, "game", "g", "csgo",
		"Game route to serve (/<game>/gsi)")
	gsiCmd.Flags().StringVar(&gsiArtifact, "artifact", "",
		"Path of the config file written for the game")
	gsiCmd.Flags().StringVar(&gsiTemplate, "template", "",
		"Config template file (default: built-in csgo template)")
	gsiCmd.Flags().StringVar(&gsiAddr, "addr", "",
		"Listen address (default 127.0.0.1)")
	gsiCmd.Flags().IntVar(&gsiPort, "port", 0,
		"Listen port (0 picks a free one)")
	gsiCmd.Flags().StringVar(&gsiToken, "token", "",
		"Shared auth token expected in every snapshot")
	gsiCmd.Flags().DurationVar(&gsiTTL, "ttl", 0,
		"How long the latest snapshot is served on GET (default 15s)")
	gsiCmd.Flags().BoolVar(&gsiGameRunning, "game-running", false,
		"The game is running; try the port from an existing artifact first")
	gsiCmd.Flags().StringSliceVar(&gsiModes, "modes", gsi.DefaultSupportedModes,
		"Game modes that produce match events")
	gsiCmd.Flags().StringVarP(&gsiFormat, "format", "f", "jsonl",
		"Output format: jsonl, pretty")
	gsiCmd.Flags().StringSliceVarP(&gsiTypes, "types", "t", nil,
		"Event types to show (comma-separated)")
	gsiCmd.Flags().StringSliceVar(&gsiExcludeTypes, "exclude-types", nil,
		"Event types to hide (comma-separated)")

	registerEventTypeCompletion(gsiCmd, "types")
	registerEventTypeCompletion(gsiCmd, "exclude-types")

	rootCmd.AddCommand(gsiCmd)
}

// gsiApp wires a snapshot server to a state manager publishing on a bus.
type gsiApp struct {
	bus    *gamewatch.EventBus
	state  *gsi.StateManager
	server *gsi.Server
	handle gsi.DelegateHandle
}

func newGSIApp(game string, cfg gsi.Config, artifact *gsi.Artifact, probe gsi.ProcessProbe, modes []string, logger *slog.Logger) *gsiApp {
	bus := gamewatch.NewEventBus(gamewatch.WithBusLogger(logger))
	state := gsi.NewStateManager(bus,
		gsi.WithSupportedModes(modes...),
		gsi.WithStateLogger(logger),
	)

	opts := []gsi.ServerOption{
		gsi.WithServerLogger(logger),
		gsi.WithProcessProbe(probe),
	}
	if artifact != nil {
		opts = append(opts, gsi.WithArtifact(artifact))
	}
	server := gsi.NewServer(cfg, opts...)

	app := &gsiApp{bus: bus, state: state, server: server}
	app.handle = server.AddDelegate(game, state)
	return app
}

// Subscribe routes bus events through the include/exclude filter to h.
func (a *gsiApp) Subscribe(include, exclude []event.Kind, h gamewatch.Handler) {
	if len(include) > 0 {
		for _, k := range include {
			if !containsKind(exclude, k) {
				a.bus.NotifyOnEvent(k, h)
			}
		}
		return
	}
	a.bus.NotifyOnAny(func(e event.Event) {
		if !containsKind(exclude, e.Kind) {
			h(e)
		}
	})
}

// Start binds the listener; see Server.Start.
func (a *gsiApp) Start(ctx context.Context) error {
	return a.server.Start(ctx)
}

// Stop detaches the state manager and shuts the server down. A match in
// progress is left open.
func (a *gsiApp) Stop(ctx context.Context) error {
	a.server.RemoveDelegate(a.handle)
	return a.server.Stop(ctx)
}

func containsKind(kinds []event.Kind, k event.Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

// gsiConfig layers explicitly set flags over the environment.
func gsiConfig(cmd *cobra.Command) (gsi.Config, error) {
	cfg, err := gsi.ConfigFromEnv()
	if err != nil {
		return gsi.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = gsiAddr
	}
	if flags.Changed("port") {
		cfg.Port = gsiPort
	}
	if flags.Changed("token") {
		cfg.Token = gsiToken
	}
	if flags.Changed("ttl") {
		cfg.TTL = gsiTTL
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return gsi.Config{}, fmt.Errorf("invalid port %d", cfg.Port)
	}
	return cfg, nil
}

// gsiArtifactFrom returns nil when no artifact path is set.
func gsiArtifactFrom(path, templatePath string) (*gsi.Artifact, error) {
	if path == "" {
		if templatePath != "" {
			return nil, fmt.Errorf("--template requires --artifact")
		}
		return nil, nil
	}
	a := &gsi.Artifact{Path: path, Template: gsi.DefaultCSGOTemplate}
	if templatePath != "" {
		data, err := safefile.ReadRegular(templatePath, maxTemplateSize)
		if err != nil {
			return nil, fmt.Errorf("reading template: %w", err)
		}
		a.Template = string(data)
	}
	return a, nil
}

func runGSI(cmd *cobra.Command, args []string) error {
	if err := validateFormat(gsiFormat); err != nil {
		return err
	}
	include, exclude, err := kindFilters(gsiTypes, gsiExcludeTypes)
	if err != nil {
		return err
	}
	cfg, err := gsiConfig(cmd)
	if err != nil {
		return err
	}
	artifact, err := gsiArtifactFrom(gsiArtifact, gsiTemplate)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := newLogger(os.Stderr, verbose)
	running := gsiGameRunning
	app := newGSIApp(gsiGame, cfg, artifact, func() bool { return running }, gsiModes, logger)

	out := newEventWriter(gsiFormat, cmd.OutOrStdout(), func(error) { cancel() })
	app.Subscribe(include, exclude, out.Handle)

	if err := app.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "listening on %s\n", app.server.Addr())

	<-ctx.Done()
	return shutdown(app, out, cmd.ErrOrStderr())
}

func shutdown(app *gsiApp, out *eventWriter, stderr io.Writer) error {
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		fmt.Fprintf(stderr, "warning: stopping gsi server: %v\n", err)
	}
	return out.Err()
}
