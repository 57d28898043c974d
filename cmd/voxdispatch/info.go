package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voxdispatch/internal/config"
	"github.com/MrWong99/voxdispatch/internal/observe"
	"github.com/MrWong99/voxdispatch/internal/registry"
	"github.com/MrWong99/voxdispatch/internal/selector"
)

func newInfoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Probe every provider, print an environment report and exit",
		Long: "Probe every provider of the configured mode (both sets in auto mode) and print\n" +
			"its availability. Exits 0 when at least one provider is available.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInfo(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
}

func runInfo(ctx context.Context, out io.Writer, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	if opts.debug {
		level.Set(slog.LevelDebug)
	}
	logger, closeLog := newLogger(config.ServerConfig{LogFormat: cfg.Server.LogFormat}, level, os.Stderr)
	defer closeLog()
	slog.SetDefault(logger)

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	modes := []selector.Mode{cfg.Server.Mode}
	if cfg.Server.Mode == selector.ModeAuto {
		modes = []selector.Mode{selector.ModeOffline, selector.ModeOnline}
	}
	probe := newProber(cfg, creds, observe.DefaultMetrics())
	states := make(map[selector.Mode]*registry.State, len(modes))
	for _, m := range modes {
		states[m] = probe(ctx, m)
	}

	if !writeReport(out, cfg.Server.Mode, modes, states) {
		return errNoProviders
	}
	return nil
}

// writeReport prints the environment and per-provider availability and
// reports whether any provider is available.
func writeReport(out io.Writer, requested selector.Mode, modes []selector.Mode, states map[selector.Mode]*registry.State) bool {
	fmt.Fprintf(out, "voxdispatch %s\n", version)
	fmt.Fprintf(out, "go:   %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(out, "mode: %s\n", requested)

	anyAvailable := false
	for _, m := range modes {
		st := states[m]
		fmt.Fprintf(out, "\n%s providers (%d of %d available)\n", m, len(st.ListAvailable()), st.Len())
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  PROVIDER\tKIND\tSTATUS\tDETAIL")
		for _, e := range st.Entries() {
			status, detail := "unavailable", e.Availability.Reason
			if e.Availability.Available {
				status, detail = "available", e.Descriptor.Description
				anyAvailable = true
			}
			if len(e.Descriptor.Aliases) > 0 {
				detail += " (aliases: " + strings.Join(e.Descriptor.Aliases, ", ") + ")"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", e.Descriptor.ID, e.Descriptor.Kind, status, detail)
		}
		tw.Flush()

		if rec := selector.New(m).Recommendation(st); rec != "" {
			fmt.Fprintf(out, "  recommended: %s\n", rec)
		}
	}
	if !anyAvailable {
		fmt.Fprintln(out, "\nno provider is available")
	}
	return anyAvailable
}
