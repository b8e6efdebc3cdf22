package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"innov8/internal/snapshot"
)

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file.parquet>",
		Short: "Write the current snapshot to a Parquet file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.store.EnsureSchema(ctx); err != nil {
				return err
			}
			snap, err := a.builder.Load(ctx, true)
			if err != nil {
				return err
			}
			if err := snapshot.WriteParquet(args[0], snap); err != nil {
				return err
			}
			fmt.Printf("wrote %d rows for %d symbols to %s\n", snap.Len(), len(snap.Symbols()), args[0])
			return nil
		},
	}
}
