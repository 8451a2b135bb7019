package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"qhist/internal/cli/help"
	"qhist/internal/queryhistory"
	"qhist/internal/storage"

	"github.com/spf13/cobra"
)

var (
	listWhere  []string
	listFilter string
	listExpr   string
	listAll    bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "find"},
	Short:   "List records, newest first",
	Long: `List records ordered by startTime, newest first. Records without a
startTime come last.

Filtered listings are capped at query_history.result_max_rows. --all lists
every record and cannot be combined with filters.

--filter takes a JSON document of field constraints using $eq, $ne, $lt,
$lte, $gt, $gte, $in, $nin, $exists and $regex. --expr takes a CEL
expression over the variable "record".`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringArrayVarP(&listWhere, "where", "w", nil, "field=value equality constraint (repeatable)")
	listCmd.Flags().StringVar(&listFilter, "filter", "", "JSON filter document")
	listCmd.Flags().StringVar(&listExpr, "expr", "", "CEL expression over record")
	listCmd.Flags().BoolVar(&listAll, "all", false, "list every record without the row cap")
	listCmd.MarkFlagsMutuallyExclusive("all", "where")
	listCmd.MarkFlagsMutuallyExclusive("all", "filter")
	listCmd.MarkFlagsMutuallyExclusive("all", "expr")

	help.SetExamples(listCmd,
		help.Example{Description: "Queries of one user", Command: "qhist list --where userId=u1"},
		help.Example{Description: "Slow queries that returned rows", Command: `qhist list --filter '{"queryRunTime":{"$gt":5000},"rowCount":{"$gt":0}}'`},
		help.Example{Description: "Named queries", Command: `qhist list --expr 'has(record.queryName) && record.queryName.startsWith("nightly")'`},
	)
}

func runList(cmd *cobra.Command, args []string) error {
	filter, err := buildFilter(listWhere, listFilter)
	if err != nil {
		return err
	}
	filter.Expression = listExpr

	return withStore(cmd, func(ctx context.Context, qs *queryhistory.Store) error {
		var (
			cursor storage.QueryHistoryCursor
			err    error
		)
		if listAll {
			cursor, err = qs.FindAll(ctx)
		} else {
			cursor, err = qs.FindByFilter(ctx, filter)
		}
		if err != nil {
			return err
		}

		records, err := storage.Collect(cursor)
		if err != nil {
			return err
		}
		return newWriter().Write(recordList(records))
	})
}

// buildFilter merges --where pairs into the --filter document.
func buildFilter(where []string, filterJSON string) (queryhistory.Filter, error) {
	match := map[string]any{}
	if filterJSON != "" {
		dec := json.NewDecoder(strings.NewReader(filterJSON))
		dec.UseNumber()
		if err := dec.Decode(&match); err != nil {
			return queryhistory.Filter{}, fmt.Errorf("%w: invalid --filter JSON: %w", storage.ErrInvalidInput, err)
		}
	}

	for _, w := range where {
		key, value, ok := strings.Cut(w, "=")
		if !ok || key == "" {
			return queryhistory.Filter{}, fmt.Errorf("%w: --where %q is not field=value", storage.ErrInvalidInput, w)
		}
		if _, dup := match[key]; dup {
			return queryhistory.Filter{}, fmt.Errorf("%w: field %q constrained twice", storage.ErrInvalidInput, key)
		}
		match[key] = value
	}

	return queryhistory.Filter{Match: match}, nil
}
