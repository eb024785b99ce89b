package main

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the listings schema if it does not exist",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(nil)
	if err != nil {
		return err
	}
	// Open migrates.
	store, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Count(cmd.Context())
	if err != nil {
		return err
	}
	logger.Info("[migrate] Schema ready on %s, %d listings stored", cfg.DatabaseDriver, n)
	return nil
}
