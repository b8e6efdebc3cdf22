package main

import (
	"github.com/spf13/cobra"

	"innov8/internal/refresh"
)

func newUpdateCmd() *cobra.Command {
	var (
		scope  string
		target string
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Bring the store up to date, rebuild the snapshot and signal running servers",
		Long: `update runs one refresh in the foreground. The default full refresh syncs
every instrument, regenerates all forecasts and writes the refresh signal so
a running server rebuilds its snapshot on the next read. Ticker and sector
refreshes sync prices only and leave forecasts as they were.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := refresh.ParseScope(scope)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			seed, err := needSeed(ctx, a.store)
			if err != nil {
				return err
			}
			if seed {
				rep, err := a.orch.Seed(ctx)
				if err != nil {
					return err
				}
				printReport(rep)
				return nil
			}

			rep, err := a.orch.Refresh(ctx, sc, target)
			if err != nil {
				return err
			}
			printReport(rep)
			return nil
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "all", "refresh scope: ticker, sector or all")
	cmd.Flags().StringVar(&target, "target", "", "symbol or sector for ticker and sector scopes")
	return cmd
}
