package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and recreate every table, then seed the universe and history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset deletes all stored data; pass --yes to confirm")
			}

			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.ResetSchema(ctx); err != nil {
				return err
			}
			rep, err := a.orch.Seed(ctx)
			if err != nil {
				return err
			}
			printReport(rep)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}
