package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/issueflow/internal/logging"
	"github.com/aretw0/issueflow/internal/metrics"
	"github.com/aretw0/issueflow/internal/presentation/tui"
	httpadapter "github.com/aretw0/issueflow/pkg/adapters/http"
	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves the workflow API: issue listings, workflow start/resume/decision,
server-sent state diffs and the Mermaid graph. Prometheus metrics are exposed on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); cmd.Flags().Changed("addr") {
			cfg.Server.Addr = addr
		}

		hooks := logging.Hooks(logger)
		var reg *prometheus.Registry
		if cfg.Server.Metrics {
			reg = prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m, err := metrics.New(reg)
			if err != nil {
				return err
			}
			hooks = domain.CombineHooks(hooks, m.Hooks())
		}

		svc, closeSvc, err := newService(cmd.Context(), cfg, service.WithLifecycleHooks(hooks))
		if err != nil {
			return err
		}
		defer closeSvc()

		api, err := httpadapter.New(svc, httpadapter.WithLogger(logger))
		if err != nil {
			return err
		}
		defer api.Close()

		mux := http.NewServeMux()
		mux.Handle("/", api.Handler())
		if reg != nil {
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		}

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			tui.PrintBanner(os.Stderr)
			logger.Info("Starting issueflow server", "addr", srv.Addr, "store", cfg.Store.Driver)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case sig := <-shutdown:
			logger.Info("Start shutdown", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				_ = srv.Close()
			}
			// Running workflows are cancelled by closeSvc and stay resumable.
			logger.Info("issueflow server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
}
