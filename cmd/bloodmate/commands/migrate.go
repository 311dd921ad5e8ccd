package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/bloodmate/donor-service/internal/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the donors schema if it does not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		repo, err := openRepository(ctx, cfg, true, logging.NewLogger("migrate"))
		if err != nil {
			return err
		}
		return repo.Close()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
