package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/psm-labs/solpay/network"
	solpaygin "github.com/psm-labs/solpay/pkg/gin"
)

var serveShutdownTimeout = 5 * time.Second

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the subscription status API and metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := serveAddr
		if addr == "" {
			addr = a.cfg.Serve.Addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if _, err := a.manager.Connect(ctx); err != nil {
			log.Warn().Err(err).Msg("no healthy RPC endpoint at startup")
		}

		router := solpaygin.NewRouter(solpaygin.StatusAPI{
			Subscriptions: a.ledger,
			Links:         a.engine,
			Catalog:       a.cfg.Catalog(),
			Oracle:        a.oracle,
			Environment:   func() network.Environment { return a.manager.Environment() },
			Endpoint:      a.manager.Endpoint,
		})

		srv := &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn().Err(err).Msg("failed to shut down status server cleanly")
			}
		}()

		log.Info().Str("addr", addr).Str("network", a.env.Name).Msg("status API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}
