// Package biohub holds the command line of the hub: dumps, uploads, the
// dispatcher, the bots and the report server.
package biohub

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/soundprediction/go-biohub"
	"github.com/soundprediction/go-biohub/pkg/config"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
	logDir     string
)

var rootCmd = &cobra.Command{
	Use:   "biohub",
	Short: "Knowledge graph ETL hub",
	Long: `biohub downloads biomedical data sources, stages them in MongoDB and
runs the bots that write them into the item store.

Run logs are loaded into a DuckDB report served over HTTP.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./biohub.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Directory receiving bot run logs")

	// Store flags
	rootCmd.PersistentFlags().String("mongo-uri", "", "Staging MongoDB URI")
	rootCmd.PersistentFlags().String("graph-uri", "", "Item store Neo4j URI")
	rootCmd.PersistentFlags().String("report-db", "", "Report DuckDB path")
	rootCmd.PersistentFlags().Bool("sparql", false, "Resolve identifiers with the SPARQL endpoint")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable the identifier cache")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	overrideConfigWithFlags(cmd, cfg)
	return cfg, nil
}

// newClient loads the configuration and builds a client. Errors are
// persisted to the report database when configured.
func newClient(cmd *cobra.Command) (*biohub.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	c := biohub.NewClient(cfg, nil)
	if cfg.Report.PersistErrors {
		if err := c.EnableTelemetry(); err != nil {
			c.Logger().Warn("error persistence disabled", "error", err)
		}
	}
	return c, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-dir") {
		cfg.Log.Dir = logDir
	}

	// Server flags
	if flags.Changed("host") {
		cfg.Server.Host = serverHost
	}
	if flags.Changed("port") {
		cfg.Server.Port = serverPort
	}
	if flags.Changed("mode") {
		cfg.Server.Mode = serverMode
	}

	// Store flags
	if flags.Changed("mongo-uri") {
		cfg.Mongo.URI, _ = flags.GetString("mongo-uri")
	}
	if flags.Changed("graph-uri") {
		cfg.Graph.URI, _ = flags.GetString("graph-uri")
	}
	if flags.Changed("report-db") {
		cfg.Report.DuckDBPath, _ = flags.GetString("report-db")
	}

	// Bot flags
	if flags.Changed("taxon") {
		cfg.InterPro.Taxon, _ = flags.GetString("taxon")
	}
	if flags.Changed("sparql") {
		cfg.Wikibase.UseSPARQL, _ = flags.GetBool("sparql")
	}
	if flags.Changed("no-cache") {
		noCache, _ := flags.GetBool("no-cache")
		cfg.Cache.Enabled = !noCache
	}
}
