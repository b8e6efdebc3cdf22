package main

import (
	"github.com/spf13/cobra"

	"innov8/internal/gather/us"
)

func newForecastCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forecast [symbol...]",
		Short: "Regenerate forecasts from stored prices without syncing",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.prepare(ctx); err != nil {
				return err
			}

			symbols := make([]string, len(args))
			for i, s := range args {
				symbols[i] = us.NormalizeSymbol(s)
			}
			rep, err := a.orch.RegenerateForecasts(ctx, symbols)
			if err != nil {
				return err
			}
			printReport(rep)
			return nil
		},
	}
}
