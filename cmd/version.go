package cmd

import (
	"fmt"

	"github.com/bnema/openvd/internal/ui"
	"github.com/bnema/openvd/libevdi"
	"github.com/spf13/cobra"
)

var (
	// Version info set by main package
	Version = "0.1.0-dev"
	Commit  = "unknown"
	Date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.SubheaderStyle.Render("openvd "+Version))
		fmt.Fprintln(out, ui.FormatKeyValue("commit", Commit))
		fmt.Fprintln(out, ui.FormatKeyValue("built", Date))
		fmt.Fprintln(out, ui.FormatKeyValue("libevdi", libevdi.LibraryVersion().String()))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// SetVersion updates the version shown by --version and the version command
func SetVersion(version, commit, date string) {
	if version != "" {
		Version = version
		rootCmd.Version = version
	}
	if commit != "" {
		Commit = commit
	}
	if date != "" {
		Date = date
	}
}
