// Package help renders styled command help with worked examples.
package help

import (
	"fmt"
	"io"
	"strings"

	"qhist/internal/cli/style"

	"github.com/spf13/cobra"
)

// Example is one usage example.
type Example struct {
	Description string
	Command     string
}

// SetExamples stores examples on cmd, rendered under "Examples:".
func SetExamples(cmd *cobra.Command, examples ...Example) {
	var b strings.Builder
	for i, ex := range examples {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "  # %s\n  $ %s\n", ex.Description, ex.Command)
	}
	cmd.Example = strings.TrimRight(b.String(), "\n")
}

// Render renders help for cmd.
func Render(cmd *cobra.Command, s *style.Styles) string {
	var b strings.Builder

	b.WriteString(s.Title.Render(cmd.CommandPath()))
	b.WriteString("\n")
	if cmd.Short != "" {
		b.WriteString(s.Text.Render(cmd.Short))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if cmd.Long != "" {
		b.WriteString(cmd.Long)
		b.WriteString("\n\n")
	}

	if cmd.Runnable() {
		b.WriteString(s.Heading.Render("Usage:"))
		b.WriteString("\n  " + cmd.UseLine() + "\n\n")
	}

	if cmd.HasAvailableSubCommands() {
		b.WriteString(s.Heading.Render("Commands:"))
		b.WriteString("\n")

		maxLen := 0
		for _, c := range cmd.Commands() {
			if c.IsAvailableCommand() && len(c.Name()) > maxLen {
				maxLen = len(c.Name())
			}
		}
		for _, c := range cmd.Commands() {
			if !c.IsAvailableCommand() {
				continue
			}
			padding := strings.Repeat(" ", maxLen-len(c.Name()))
			fmt.Fprintf(&b, "  %s%s  %s\n", c.Name(), padding, c.Short)
		}
		b.WriteString("\n")
	}

	if cmd.HasAvailableLocalFlags() {
		b.WriteString(s.Heading.Render("Flags:"))
		b.WriteString("\n")
		b.WriteString(cmd.LocalFlags().FlagUsages())
		b.WriteString("\n")
	}

	if cmd.HasAvailableInheritedFlags() {
		b.WriteString(s.Heading.Render("Global Flags:"))
		b.WriteString("\n")
		b.WriteString(cmd.InheritedFlags().FlagUsages())
		b.WriteString("\n")
	}

	if cmd.Example != "" {
		b.WriteString(s.Heading.Render("Examples:"))
		b.WriteString("\n")
		for _, line := range strings.Split(cmd.Example, "\n") {
			trimmed := strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(trimmed, "#"):
				b.WriteString("  " + s.Muted.Italic(true).Render(trimmed))
			case strings.HasPrefix(trimmed, "$"):
				b.WriteString("  " + s.Command.Render(trimmed))
			default:
				b.WriteString(line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if cmd.HasAvailableSubCommands() {
		fmt.Fprintf(&b, "Use \"%s [command] --help\" for more information about a command.\n", cmd.CommandPath())
	}

	return b.String()
}

// Install replaces the help function of root and its subcommands. color
// reports whether styled output is wanted; it is evaluated when help is shown.
func Install(root *cobra.Command, color func() bool) {
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprint(out, Render(cmd, style.New(out, color())))
	})
}

// Fprint writes help for cmd to w without styling.
func Fprint(w io.Writer, cmd *cobra.Command) {
	fmt.Fprint(w, Render(cmd, style.New(w, false)))
}
