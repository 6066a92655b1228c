package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"pibooth/internal/clock"
	"pibooth/pkg/input"

	"github.com/spf13/cobra"
)

func newHooksCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "hooks",
		Short: "List the hook catalogue and the plugins implementing each hook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := global.loadConfig()
			if err != nil {
				return err
			}
			b, err := newBooth(cfg, logger, clock.NewRealClock(), nil, input.NewQueue(0))
			if err != nil {
				return err
			}
			defer b.close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "HOOK\tIMPLEMENTED BY")
			for _, spec := range b.catalogue.Specs() {
				fmt.Fprintf(w, "%s\t%s\n", spec, strings.Join(b.manager.Implementers(spec.Name), ", "))
			}
			return w.Flush()
		},
	}
}
