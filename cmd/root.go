package main

import (
	"os"
	"strconv"

	"pibooth/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultConfigPath = "pibooth.yaml"

type globalFlags struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "pibooth",
		Short:         "Photobooth state machine driven by plugins",
		Long:          `pibooth runs a photobooth as a state machine whose behaviour is provided by plugins implementing state hooks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A missing .env is fine; the environment may be set directly.
			_ = godotenv.Load()
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Configuration file (default $PIBOOTH_CONFIG or "+defaultConfigPath+")")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newRunCmd(flags),
		newHooksCmd(flags),
		newStatesCmd(flags),
		newConfigCmd(flags),
	)
	return root
}

func (f *globalFlags) path() string {
	if f.configPath != "" {
		return f.configPath
	}
	if env := os.Getenv("PIBOOTH_CONFIG"); env != "" {
		return env
	}
	return defaultConfigPath
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadConfig reads the configuration with a logger that honours --debug
// and general.debug.
func (f *globalFlags) loadConfig() (*config.Config, *zap.Logger, error) {
	logger, err := newLogger(f.debug)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.NewLoader(f.path(), logger).Load()
	if err != nil {
		return nil, logger, err
	}
	if general, err := cfg.General(); err == nil && general.Debug && !f.debug {
		if debugLogger, err := newLogger(true); err == nil {
			logger.Sync()
			logger = debugLogger
		}
	}
	return cfg, logger, nil
}

// apiPort returns the API port: the flag if set, then $PIBOOTH_API_PORT,
// then the configuration.
func apiPort(flag int, cfg config.APIConfig, logger *zap.Logger) int {
	if flag > 0 {
		return flag
	}
	if env := os.Getenv("PIBOOTH_API_PORT"); env != "" {
		port, err := strconv.Atoi(env)
		if err == nil && port > 0 {
			return port
		}
		logger.Warn("Ignoring invalid PIBOOTH_API_PORT", zap.String("value", env))
	}
	return cfg.Port
}
