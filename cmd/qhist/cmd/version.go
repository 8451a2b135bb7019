package cmd

import (
	"qhist/internal/cli/output"
	"qhist/internal/version"

	"github.com/spf13/cobra"
)

type versionView version.Info

func (v versionView) String() string { return version.Info(v).String() }

func (v versionView) TableData() *output.Table {
	t := output.NewTable("field", "value")
	for _, line := range [][2]string{
		{"version", v.Version},
		{"commit", v.Commit},
		{"go", v.GoVersion},
		{"platform", v.OS + "/" + v.Arch},
	} {
		t.AddRow(line[0], line[1])
	}
	if !v.BuildTime.IsZero() {
		t.AddRow("built", v.BuildTime.Format(timeLayout))
	}
	return t
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return newWriter().Write(versionView(version.Get()))
	},
}
