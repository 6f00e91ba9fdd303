/*
main.go - Application entry point

PURPOSE:
  Command-line entry for the SIRW decision engine. Wires configuration,
  storage, the decision service, event publishing and the HTTP server.

COMMANDS:
  sirw-server serve              Run the HTTP API (default command)
  sirw-server migrate up|down    Apply or roll back schema migrations
  sirw-server migrate version    Print the schema version

CONFIGURATION (highest wins):
  1. Command-line flags       --port, --db, --config, --log-level
  2. Environment variables    SIRW_SERVER_PORT, SIRW_DB_PATH, SIRW_KAFKA_BROKERS ...
  3. .env in the working dir  loaded into the environment first
  4. Config file              ./sirw.yaml or --config
  5. Built-in defaults        config.DefaultConfig

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the completion scheduler
  2. Stop accepting new connections
  3. Wait for active requests (server.shutdown_timeout)
  4. Flush the publisher, close the database

EXAMPLES:
  ./sirw-server serve --db=./data/sirw.db
  ./sirw-server serve --db=":memory:" --log-level=debug
  SIRW_KAFKA_BROKERS=kafka:9092 ./sirw-server serve
  ./sirw-server migrate version --db=./data/sirw.db

SEE ALSO:
  - config/config.go: Configuration layout
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/warp/sirw-engine/config"
)

type rootOptions struct {
	configFile string
	v          *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "sirw-server",
		Short:         "SIRW eligibility and balance decision engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			opts.v = config.New(opts.configFile)
			return bindFlags(opts.v, cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Config file (default ./sirw.yaml)")
	cmd.PersistentFlags().String("db", "", "SQLite database path, \":memory:\" for in-memory")
	cmd.PersistentFlags().String("log-level", "", "Override log level (debug|info|warn|error)")

	serve := newServeCmd(opts)
	cmd.AddCommand(serve, newMigrateCmd(opts))

	// `sirw-server` alone runs the server.
	cmd.RunE = serve.RunE
	cmd.Flags().AddFlagSet(serve.Flags())

	return cmd
}

// bindFlags maps command-line flags onto config keys. Only flags the user
// actually set override the file and environment.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	keys := map[string]string{
		"db":        "db.path",
		"log-level": "log.level",
		"port":      "server.port",
	}
	for flag, key := range keys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
