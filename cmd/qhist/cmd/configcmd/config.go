// Package configcmd implements the qhist config subcommands.
package configcmd

import (
	"fmt"
	"sort"
	"strings"

	"qhist/internal/cli/help"
	"qhist/internal/cli/output"
	"qhist/internal/config"

	"github.com/spf13/cobra"
)

const redacted = "********"

// settings is a flattened view of the configuration.
type settings map[string]any

func (s settings) keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s settings) TableData() *output.Table {
	t := output.NewTable("key", "value")
	for _, k := range s.keys() {
		t.AddRow(k, fmt.Sprint(s[k]))
	}
	return t
}

// NewCommand returns the config command. cfg and file are read when a
// subcommand runs, after the root command has loaded the configuration.
func NewCommand(cfg func() *config.Config, file func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and generate configuration",
	}

	cmd.AddCommand(newShowCommand(cfg), newPathCommand(cfg, file), newGenerateCommand(cfg))
	return cmd
}

func newShowCommand(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			out := writer(cmd, c)
			return out.Write(flatten(c))
		},
	}
}

func newPathCommand(cfg func() *config.Config, file func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ConfigFileUsed(file())
			if path == "" {
				return fmt.Errorf("no config file found, defaults are in use")
			}
			fmt.Fprintln(writer(cmd, cfg()).Out(), path)
			return nil
		},
	}
}

func newGenerateCommand(cfg func() *config.Config) *cobra.Command {
	var (
		format string
		dir    string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a config file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, created, err := config.GenerateConfigIfNotExists(dir, format)
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintf(cmd.ErrOrStderr(), "config file already exists: %s\n", path)
			}
			fmt.Fprintln(writer(cmd, cfg()).Out(), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "file format ("+strings.Join(config.SupportedFormats, ", ")+")")
	cmd.Flags().StringVar(&dir, "dir", "", "target directory (default is the user config directory)")
	help.SetExamples(cmd,
		help.Example{Description: "Create ~/.config/qhist/config.yaml", Command: "qhist config generate"},
		help.Example{Description: "Create a TOML file in the current directory", Command: "qhist config generate --format toml --dir ."},
	)
	return cmd
}

func writer(cmd *cobra.Command, c *config.Config) *output.Writer {
	if c == nil {
		c = config.DefaultConfig()
	}
	format, err := output.ParseFormat(c.Output.Format)
	if err != nil {
		format = output.FormatTable
	}
	return output.NewWriter(format).WithOutput(cmd.OutOrStdout()).WithColor(!c.Log.NoColor)
}

// flatten returns the dotted settings of c with secrets masked.
func flatten(c *config.Config) settings {
	v := config.NewViperFromConfig(c)
	out := settings{}
	for _, key := range v.AllKeys() {
		out[key] = v.Get(key)
	}
	if dsn, _ := out["database.postgres.dsn"].(string); dsn != "" {
		out["database.postgres.dsn"] = redacted
	}
	return out
}
