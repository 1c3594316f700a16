package biohub

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soundprediction/go-biohub/pkg/config"
	"github.com/soundprediction/go-biohub/pkg/server"
	"github.com/soundprediction/go-biohub/pkg/server/handlers"
	"github.com/soundprediction/go-biohub/pkg/utils"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the report HTTP server",
	Long: `Start the HTTP server exposing the bot run report.

The server provides endpoints for:
- Listing bots and their maintainers
- Browsing runs and their action counts
- Querying log entries by item, action or run
- Health and readiness checks

Configuration can be provided through config files, environment variables, or command-line flags.`,
	RunE: runServer,
}

var (
	serverHost string
	serverPort int
	serverMode string
)

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVar(&serverHost, "host", "localhost", "Server host")
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "Server port")
	serverCmd.Flags().StringVar(&serverMode, "mode", "debug", "Server mode (debug, release, test)")
	serverCmd.Flags().Bool("check-staging", false, "Report the staging database in /ready")
}

func runServer(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	cfg := c.Config()
	if err := validateServerConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	reports, err := c.Reports()
	if err != nil {
		return fmt.Errorf("failed to open report database: %w", err)
	}

	srv := server.New(cfg.Server, reports, c.Logger())
	if check, _ := cmd.Flags().GetBool("check-staging"); check {
		store, err := c.Staging(cmd.Context())
		if err != nil {
			return err
		}
		if p, ok := store.(handlers.Pinger); ok {
			srv.AddCheck("staging", p)
		}
	}
	srv.Setup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		c.Logger().Info("received signal", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		c.Logger().Info("server stopped")
		return nil
	}
}

func validateServerConfig(cfg *config.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}
	return utils.ValidateRequired(map[string]string{
		"report.duckdb_path": cfg.Report.DuckDBPath,
		"server.host":        cfg.Server.Host,
	})
}
