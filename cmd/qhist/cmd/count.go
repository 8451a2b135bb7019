package cmd

import (
	"context"

	"qhist/internal/queryhistory"

	"github.com/spf13/cobra"
)

var (
	countWhere  []string
	countFilter string
)

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count records matching a filter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := buildFilter(countWhere, countFilter)
		if err != nil {
			return err
		}
		return withStore(cmd, func(ctx context.Context, qs *queryhistory.Store) error {
			n, err := qs.Count(ctx, filter)
			if err != nil {
				return err
			}
			return newWriter().Write(countResult{Count: n})
		})
	},
}

func init() {
	countCmd.Flags().StringArrayVarP(&countWhere, "where", "w", nil, "field=value equality constraint (repeatable)")
	countCmd.Flags().StringVar(&countFilter, "filter", "", "JSON filter document")
}
