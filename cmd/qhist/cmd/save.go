package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"qhist/internal/cli/help"
	"qhist/internal/queryhistory"

	"github.com/spf13/cobra"
)

var saveFile string

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Validate and store a query history record",
	Long: `Read a JSON document from a file or stdin, validate it and store it.

Required fields are userId, userEmail, connectionId, connectionName and
queryText. createdDate defaults to the current time. Numeric strings,
"true"/"false" and date strings are converted to the field type.`,
	Args: cobra.NoArgs,
	RunE: runSave,
}

func init() {
	saveCmd.Flags().StringVarP(&saveFile, "file", "f", "-", "JSON document to read, - for stdin")
	help.SetExamples(saveCmd,
		help.Example{Description: "Save a record from a file", Command: "qhist save -f query.json"},
		help.Example{Description: "Save from stdin and print only the id", Command: `echo '{"userId":"u1",...}' | qhist save -o quiet`},
	)
}

func runSave(cmd *cobra.Command, args []string) error {
	in := cmd.InOrStdin()
	if saveFile != "-" {
		f, err := os.Open(saveFile)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", saveFile, err)
		}
		defer f.Close()
		in = f
	}

	doc, err := readDocument(in)
	if err != nil {
		return err
	}

	return withStore(cmd, func(ctx context.Context, qs *queryhistory.Store) error {
		record, err := qs.Save(ctx, doc)
		if err != nil {
			return err
		}
		out := newWriter()
		out.Success("saved " + record.ID)
		return out.Write((*recordView)(record))
	})
}

// readDocument decodes one JSON object, keeping numbers as json.Number.
func readDocument(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("expected a JSON object")
	}
	return doc, nil
}
