// Command voxdispatch serves text-to-speech tools over MCP on stdio. It
// dispatches each request to one of several local engines or cloud services,
// chosen by availability and preference.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxdispatch/internal/batch"
	"github.com/MrWong99/voxdispatch/internal/config"
	"github.com/MrWong99/voxdispatch/internal/dispatch"
	"github.com/MrWong99/voxdispatch/internal/observe"
	"github.com/MrWong99/voxdispatch/internal/registry"
	"github.com/MrWong99/voxdispatch/internal/resilience"
	"github.com/MrWong99/voxdispatch/internal/selector"
	"github.com/MrWong99/voxdispatch/internal/server"
	otoplayer "github.com/MrWong99/voxdispatch/pkg/audio/oto"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

// errNoProviders signals exit code 1 after the reason was already reported.
var errNoProviders = errors.New("no text-to-speech provider is available")

type options struct {
	configPath string
	mode       string
	debug      bool
	info       bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errNoProviders) {
			fmt.Fprintf(os.Stderr, "voxdispatch: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "voxdispatch",
		Short:         "Text-to-speech MCP server over stdio",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.info {
				return runInfo(cmd.Context(), cmd.OutOrStdout(), opts)
			}
			return serve(cmd.Context(), opts)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "path to the YAML configuration file (defaults apply when empty)")
	f.StringVar(&opts.mode, "mode", "", "provider set: offline, online or auto (overrides server.mode)")
	f.BoolVar(&opts.debug, "debug", false, "log at debug level")
	cmd.Flags().BoolVar(&opts.info, "info", false, "print the environment report and exit")

	cmd.AddCommand(newInfoCmd(opts))
	return cmd
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found", opts.configPath)
		}
		return nil, err
	}
	if opts.mode != "" {
		m := selector.Mode(opts.mode)
		if !m.IsValid() {
			return nil, fmt.Errorf("--mode %q is invalid; valid values: offline, online, auto", opts.mode)
		}
		cfg.Server.Mode = m
	}
	if opts.debug {
		cfg.Server.LogLevel = config.LogDebug
	}
	return cfg, nil
}

func serve(ctx context.Context, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	logger, closeLog := newLogger(cfg.Server, level, os.Stderr)
	defer closeLog()
	slog.SetDefault(logger)

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Server.ServiceName,
		ServiceVersion: version,
		Mode:           string(cfg.Server.Mode),
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	slog.Info("voxdispatch starting",
		"version", version,
		"config", opts.configPath,
		"mode", cfg.Server.Mode,
		"log_level", cfg.Server.LogLevel,
	)

	st, mode, err := resolveMode(ctx, cfg.Server.Mode, newProber(cfg, creds, metrics))
	if err != nil {
		slog.Error("startup aborted", "err", err)
		return errNoProviders
	}
	slog.Info("providers probed", "mode", mode, "registry", st.String(), "available", st.ListAvailable())
	tel.SetMode(string(mode))

	dopts := []dispatch.Option{
		dispatch.WithScratchDir(cfg.Server.ScratchDir),
		dispatch.WithSynthesisTimeout(cfg.Synthesis.Timeout),
		dispatch.WithMetrics(metrics),
		dispatch.WithBreakers(resilience.NewSet(resilience.Config{})),
		dispatch.WithPlaybackLimit(cfg.Playback.MaxDuration),
	}
	if mode == selector.ModeOffline {
		dopts = append(dopts, dispatch.WithPlayer(otoplayer.New(
			otoplayer.WithSampleRate(cfg.Playback.SampleRate),
			otoplayer.WithPollInterval(cfg.Playback.PollInterval),
		)))
	}
	d := dispatch.New(st, selector.New(mode), dopts...)

	srv, err := server.New(d,
		server.WithVersion(version),
		server.WithBatch(batch.New(d, batch.WithConcurrency(cfg.Synthesis.Concurrency))),
	)
	if err != nil {
		return err
	}

	if opts.configPath != "" {
		w, err := config.NewWatcher(opts.configPath, func(_, _ *config.Config, diff config.ConfigDiff) {
			applyReload(diff, level, d)
		})
		if err != nil {
			slog.Warn("config hot-reload disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The client closing stdin ends the session and the process.
		defer cancel()
		slog.Info("serving MCP on stdio", "mode", mode)
		if err := srv.Run(gctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp: %w", err)
		}
		return nil
	})

	if cfg.Server.AdminAddr != "" {
		admin := &http.Server{
			Addr:              cfg.Server.AdminAddr,
			Handler:           newAdminRouter(st, metrics, tel.Handler()),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("admin endpoint listening", "addr", admin.Addr)
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			return admin.Shutdown(sctx)
		})
	}

	err = g.Wait()
	slog.Info("shutting down")
	if err != nil {
		slog.Error("run error", "err", err)
		return err
	}
	slog.Info("goodbye")
	return nil
}

// applyReload applies the hot-reloadable part of a config change.
func applyReload(diff config.ConfigDiff, level *slog.LevelVar, d *dispatch.Dispatcher) {
	if diff.LogLevelChanged {
		level.Set(diff.NewLogLevel.Slog())
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.PlaybackChanged {
		d.SetPlaybackLimit(diff.NewPlayback.MaxDuration)
		slog.Info("playback limit changed", "max_duration", diff.NewPlayback.MaxDuration)
	}
	if len(diff.Ignored) > 0 {
		slog.Warn("config sections changed that need a restart", "sections", diff.Ignored)
	}
}

// prober builds and probes the providers of one mode.
type prober func(ctx context.Context, mode selector.Mode) *registry.State

func newProber(cfg *config.Config, creds config.Credentials, m *observe.Metrics) prober {
	reg := config.DefaultRegistry()
	return func(ctx context.Context, mode selector.Mode) *registry.State {
		bc := config.BuildContext{Config: cfg, Credentials: creds, Mode: mode}
		providers := reg.Build(ctx, bc, config.ProvidersFor(mode))
		return registry.Initialize(ctx, providers,
			registry.WithProbeTimeout(cfg.Probe.Timeout),
			registry.WithMetrics(m),
		)
	}
}

// resolveMode probes the providers of the requested mode. Auto mode runs
// offline when a local engine is available and otherwise falls back to
// online; it fails when the online set has nothing available either. A
// concrete mode is served even with nothing available.
func resolveMode(ctx context.Context, requested selector.Mode, probe prober) (*registry.State, selector.Mode, error) {
	if requested != selector.ModeAuto {
		return probe(ctx, requested), requested, nil
	}
	offline := probe(ctx, selector.ModeOffline)
	if hasLocalEngine(offline) {
		slog.Info("auto mode resolved", "mode", selector.ModeOffline)
		return offline, selector.ModeOffline, nil
	}
	slog.Info("auto mode: no local engine available", "mode", selector.ModeOffline)

	online := probe(ctx, selector.ModeOnline)
	if len(online.ListAvailable()) > 0 {
		slog.Info("auto mode resolved", "mode", selector.ModeOnline)
		return online, selector.ModeOnline, nil
	}
	slog.Info("auto mode: no provider available", "mode", selector.ModeOnline)
	return nil, "", fmt.Errorf("auto mode: %w in offline or online mode", errNoProviders)
}

// hasLocalEngine reports whether st has an available provider that runs on
// the host. A reachable gtts alone does not make the offline set usable.
func hasLocalEngine(st *registry.State) bool {
	for _, e := range st.Entries() {
		if e.Descriptor.Kind == tts.KindLocalEngine && e.Availability.Available {
			return true
		}
	}
	return false
}
