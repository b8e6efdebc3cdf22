package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"innov8/internal/httpapi"
	"innov8/internal/refresh"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API and run the scheduled full refresh",
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
			if _, err := a.builder.Load(ctx, false); err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			job := refresh.NewJob(ctx, a.orch, a.log)
			srv := httpapi.NewDashboardServer(a.builder, a.store, job, a.log)
			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.log.Info("dashboard API listening", "addr", httpServer.Addr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				a.log.Info("shutting down dashboard API")
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				return httpServer.Shutdown(shutdownCtx)
			})

			if spec := a.cfg.Refresh.Schedule; spec != "" {
				sched, err := refresh.NewScheduler(spec, a.loc, job, a.log)
				if err != nil {
					return err
				}
				g.Go(func() error { return sched.Run(gctx) })
			}

			err = g.Wait()
			job.Wait()
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
