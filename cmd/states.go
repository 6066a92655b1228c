package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"pibooth/internal/config"
	"pibooth/pkg/state"

	"github.com/spf13/cobra"
)

func newStatesCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "states",
		Short: "List the states of the booth and their hooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := global.loadConfig()
			if err != nil {
				return err
			}
			graph, err := configuredGraph(cfg)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STATE\tROLE\tHOOKS")
			for _, def := range graph.Definitions() {
				role := ""
				switch def.Name {
				case graph.Initial():
					role = "initial"
				case graph.FailSafe():
					role = "failsafe"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", def.Name, role, strings.Join(def.Hooks(), " "))
			}
			return w.Flush()
		},
	}
}

// configuredGraph returns the default graph plus the custom states of the
// configuration.
func configuredGraph(cfg *config.Config) (*state.Graph, error) {
	pluginsCfg, err := cfg.Plugins()
	if err != nil {
		return nil, err
	}
	reg, err := state.NewCatalogue()
	if err != nil {
		return nil, err
	}
	graph := state.DefaultGraph()
	for _, name := range pluginsCfg.States {
		if _, err := state.AddCustom(reg, graph, state.Name(name)); err != nil {
			return nil, err
		}
	}
	return graph, nil
}
