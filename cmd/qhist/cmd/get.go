package cmd

import (
	"context"
	"fmt"

	"qhist/internal/queryhistory"
	"qhist/internal/storage"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, qs *queryhistory.Store) error {
			record, found, err := qs.FindByID(ctx, args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("query history %s: %w", args[0], storage.ErrNotFound)
			}
			return newWriter().Write((*recordView)(record))
		})
	},
}
