package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/sirw-engine/config"
	"github.com/warp/sirw-engine/store/sqlite"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Manage the database schema",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.v)
			if err != nil {
				return err
			}
			db, err := sqlite.Open(cfg.DB.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			switch args[0] {
			case "up", "down":
				if err := sqlite.Migrate(db, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "migrate %s: done\n", args[0])
			case "version":
				v, dirty, err := sqlite.MigrationVersion(db)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "version %d (dirty: %t)\n", v, dirty)
			default:
				return fmt.Errorf("unknown migrate action %q, want up, down or version", args[0])
			}
			return nil
		},
	}
}
