package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pibooth/internal/api"
	"pibooth/internal/clock"
	"pibooth/internal/window"
	"pibooth/pkg/input"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type runFlags struct {
	headless bool
	port     int
}

func newRunCmd(global *globalFlags) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the photobooth",
		Long:  `Starts the state machine with the built-in and configured plugins, the terminal window, the HTTP API and the websocket remote control.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), global, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.headless, "headless", false, "Do not open the terminal window")
	cmd.Flags().IntVar(&flags.port, "port", 0, "HTTP API port (default $PIBOOTH_API_PORT or api.port)")
	return cmd
}

func run(ctx context.Context, global *globalFlags, flags *runFlags) (err error) {
	cfg, logger, err := global.loadConfig()
	if logger != nil {
		defer logger.Sync()
	}
	if err != nil {
		return err
	}

	controls, err := cfg.Controls()
	if err != nil {
		return err
	}
	apiCfg, err := cfg.API()
	if err != nil {
		return err
	}

	queue := input.NewQueue(input.DefaultQueueCapacity)

	var win *window.Window
	if !flags.headless {
		if win, err = window.NewTerminal(queue, controls.QuitKey, logger); err != nil {
			return err
		}
		if err := win.Init(); err != nil {
			return err
		}
		defer win.Close()
	}

	b, err := newBooth(cfg, logger, clock.NewRealClock(), win, queue)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, b.close())
	}()

	if apiCfg.Enabled {
		server := api.NewServer(api.Deps{
			Booth:   b.machine,
			Tracker: b.tracker,
			Queue:   b.remote,
			States:  b.graph.Names(),
			Remote:  b.hub,
			Remotes: b.hub.Clients,
			Metrics: promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{}),
		}, logger, apiPort(flags.port, apiCfg, logger))
		if err := server.Start(); err != nil {
			return err
		}
		defer server.Stop()
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Photobooth running",
		zap.Strings("plugins", pluginNames(b)),
		zap.Bool("headless", flags.headless))

	return b.machine.Run(ctx, b.source())
}

func pluginNames(b *booth) []string {
	plugins := b.manager.Plugins()
	names := make([]string, 0, len(plugins))
	for _, p := range plugins {
		names = append(names, p.Name())
	}
	return names
}
