package cmd

import (
	"context"
	"fmt"
	"time"

	"qhist/internal/domain"
	"qhist/internal/queryhistory"
	"qhist/internal/storage"

	"github.com/spf13/cobra"
)

var (
	purgeDryRun bool
	purgeVacuum bool
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove records older than the retention period",
	Long: `Remove every record whose createdDate is older than
query_history.retention_time_in_days. qhistd does this on a schedule;
purge runs it once.

With --vacuum the database is compacted after records were removed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd, func(ctx context.Context, db storage.Store, qs *queryhistory.Store) error {
			out := newWriter()

			if purgeDryRun {
				cutoff := qs.RetentionCutoff()
				n, err := qs.Count(ctx, queryhistory.Filter{Match: map[string]any{
					domain.FieldCreatedDate: map[string]any{"$lt": cutoff},
				}})
				if err != nil {
					return err
				}
				out.Info(fmt.Sprintf("%d records created before %s would be removed", n, cutoff.Format(time.RFC3339)))
				return out.Write(countResult{Count: n})
			}

			exp, err := qs.Expire(ctx)
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("removed %d records created before %s", exp.Removed, exp.Cutoff.Format(time.RFC3339)))

			if purgeVacuum && exp.Removed > 0 {
				if err := db.Vacuum(ctx); err != nil {
					return err
				}
				out.Info("database compacted")
			}
			return out.Write(countResult{Count: exp.Removed})
		})
	},
}

func init() {
	purgeCmd.Flags().BoolVar(&purgeDryRun, "dry-run", false, "only count the records that would be removed")
	purgeCmd.Flags().BoolVar(&purgeVacuum, "vacuum", false, "compact the database after removing records")
}
