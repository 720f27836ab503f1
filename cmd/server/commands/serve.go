package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/fb-page-poster/internal/config"
	"github.com/jrsteele09/fb-page-poster/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := config.New()
	displayAppname(c.GetAppName())

	a, err := newApp(ctx, c)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer a.close()

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           server.New(c, a.dashboard, a.metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Str("env", c.GetEnv()).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server.ListenAndServe %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.creds.Run(gctx, c.GetExpiryCheckInterval(), c.GetWorkspaceIdleTTL())
		return nil
	})
	g.Go(func() error {
		a.dashboard.RunJanitor(gctx, c.GetJanitorInterval(), c.GetWorkspaceIdleTTL())
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server.Shutdown: %w", err)
		}
		a.dashboard.Wait()
		return nil
	})

	err = g.Wait()
	log.Info().Msg("server stopped")
	return err
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
