package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/issueflow/internal/logging"
	mcpadapter "github.com/aretw0/issueflow/pkg/adapters/mcp"
	"github.com/aretw0/issueflow/pkg/service"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes workflows as MCP tools so agents can start, inspect and approve them.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		svc, closeSvc, err := newService(cmd.Context(), cfg, service.WithLifecycleHooks(logging.Hooks(logger)))
		if err != nil {
			return err
		}
		defer closeSvc()

		srv, err := mcpadapter.NewServer(svc, mcpadapter.WithLogger(logger))
		if err != nil {
			return err
		}

		switch transport {
		case "stdio":
			// Logs go to stderr and never corrupt JSON-RPC on stdout.
			logger.Info("Starting issueflow MCP Server (Stdio)")
			return srv.ServeStdio()
		case "sse":
			addr := fmt.Sprintf(":%d", port)
			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           srv.SSEHandler(fmt.Sprintf("http://localhost:%d", port)),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			serverErrors := make(chan error, 1)
			go func() {
				logger.Info("Starting issueflow MCP Server (SSE)", "port", port)
				serverErrors <- httpSrv.ListenAndServe()
			}()

			select {
			case err := <-serverErrors:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := httpSrv.Shutdown(shutdownCtx); err != nil {
					_ = httpSrv.Close()
				}
			}
			logger.Info("MCP Server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
}
