package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"innov8/internal/httpapi"
	"innov8/pkg/innov8"
)

func newStatusCmd() *cobra.Command {
	var (
		server  string
		trigger string
		target  string
		force   bool
		wait    bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show, and optionally start, the refresh job of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			c := innov8.NewClient(server)
			if trigger != "" {
				resp, err := c.TriggerRefresh(ctx, trigger, target, force)
				if err != nil {
					return err
				}
				if resp.UpToDate {
					fmt.Printf("%s %s is already up to date\n", resp.Scope, resp.Target)
					return nil
				}
				fmt.Printf("started run %s\n", resp.RunID)
			}

			var (
				st  httpapi.RefreshStatusResponse
				err error
			)
			if wait {
				st, err = c.WaitRefresh(ctx, time.Second)
			} else {
				st, err = c.RefreshStatus(ctx)
			}
			if err != nil {
				return err
			}
			printStatus(st)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8050", "server base URL")
	cmd.Flags().StringVar(&trigger, "trigger", "", "start a refresh first: ticker, sector or all")
	cmd.Flags().StringVar(&target, "target", "", "symbol or sector for --trigger")
	cmd.Flags().BoolVar(&force, "force", false, "refresh even if the target is up to date")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the run finishes")
	return cmd
}

func printStatus(st httpapi.RefreshStatusResponse) {
	state := "idle"
	if st.Running {
		state = "running"
	}
	fmt.Printf("state:      %s\n", state)
	if st.RunID == "" {
		return
	}
	fmt.Printf("run:        %s (%s %s)\n", st.RunID, st.Scope, st.Target)
	if st.StartedAt != nil {
		fmt.Printf("started:    %s\n", st.StartedAt.Format(time.RFC3339))
	}
	if st.FinishedAt != nil {
		fmt.Printf("finished:   %s\n", st.FinishedAt.Format(time.RFC3339))
	}
	fmt.Printf("synced:     %d (%d failed)\n", st.Synced, st.SyncFailed)
	fmt.Printf("forecast:   %d (%d failed)\n", st.Forecast, st.ForecastFailed)
	if st.Error != "" {
		fmt.Printf("error:      %s\n", st.Error)
	}
	fmt.Printf("up to date: %s\n", strings.Join(st.UpToDate, ", "))
}
