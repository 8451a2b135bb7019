package help

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func testTree() *cobra.Command {
	root := &cobra.Command{Use: "qhist", Short: "query history"}
	root.PersistentFlags().String("config", "", "config file")

	get := &cobra.Command{Use: "get <id>", Short: "Show one record", RunE: func(*cobra.Command, []string) error { return nil }}
	get.Flags().Bool("raw", false, "raw output")
	SetExamples(get,
		Example{Description: "Show a record", Command: "qhist get 42"},
		Example{Description: "As JSON", Command: "qhist get 42 -o json"},
	)
	root.AddCommand(get)
	return root
}

func TestSetExamples(t *testing.T) {
	root := testTree()
	get, _, err := root.Find([]string{"get"})
	assert.NoError(t, err)
	assert.Equal(t, "  # Show a record\n  $ qhist get 42\n\n  # As JSON\n  $ qhist get 42 -o json", get.Example)
}

func TestRender(t *testing.T) {
	root := testTree()

	var buf bytes.Buffer
	Fprint(&buf, root)
	out := buf.String()
	assert.Contains(t, out, "Commands:\n  get  Show one record")
	assert.Contains(t, out, "Use \"qhist [command] --help\"")

	get, _, _ := root.Find([]string{"get"})
	buf.Reset()
	Fprint(&buf, get)
	out = buf.String()
	assert.Contains(t, out, "Usage:\n  qhist get <id>")
	assert.Contains(t, out, "--raw")
	assert.Contains(t, out, "Global Flags:")
	assert.Contains(t, out, "  $ qhist get 42 -o json")
}

func TestInstall(t *testing.T) {
	root := testTree()
	Install(root, func() bool { return false })

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"get", "--help"})
	assert.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "qhist get")
}
