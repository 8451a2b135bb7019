package cmd

import (
	"strconv"

	"qhist/internal/cli/output"
	"qhist/internal/storage"

	"github.com/spf13/cobra"
)

type statsView storage.StorageStats

func (s statsView) TableData() *output.Table {
	t := output.NewTable("field", "value")
	t.AddRow("backend", string(s.Backend))
	t.AddRow("healthy", strconv.FormatBool(s.Healthy))
	t.AddRow("records", strconv.FormatInt(s.Records, 10))
	t.AddRow("bytes used", strconv.FormatInt(s.BytesUsed, 10))
	if s.BytesAvailable > 0 {
		t.AddRow("bytes available", strconv.FormatInt(s.BytesAvailable, 10))
	}
	t.AddRow("open connections", strconv.Itoa(s.OpenConnections))
	t.AddRow("message", s.Message)
	return t
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return newWriter().Write(statsView(stats))
	},
}
