package main

import (
	"fmt"
	"sort"

	"pibooth/internal/config"

	"github.com/spf13/cobra"
)

func newConfigCmd(global *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(global.debug)
			if err != nil {
				return err
			}
			defer logger.Sync()

			path := global.path()
			if err := config.NewLoader(path, logger).WriteDefault(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default configuration written to %s\n", path)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := global.loadConfig()
			if err != nil {
				return err
			}
			for _, section := range cfg.Sections() {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s]\n", section)
				var options map[string]any
				if err := cfg.Decode(section, &options); err != nil {
					return err
				}
				for _, key := range sortedKeys(options) {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s = %v\n", key, options[key])
				}
			}
			return nil
		},
	})
	return cmd
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
