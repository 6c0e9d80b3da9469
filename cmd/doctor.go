package cmd

import (
	"errors"
	"fmt"

	"github.com/bnema/openvd/internal/setup"
	"github.com/bnema/openvd/internal/ui"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that this host can run the configured displays",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		findings := newHostCheck().Run(cfg)
		out := cmd.OutOrStdout()
		for _, f := range findings {
			line := ui.FormatKeyValue(f.Check, f.Detail)
			switch f.Severity {
			case setup.SeverityOK:
				fmt.Fprintln(out, ui.FormatSuccess(line))
			case setup.SeverityWarning:
				fmt.Fprintln(out, ui.FormatWarning(line))
			default:
				fmt.Fprintln(out, ui.FormatError(line))
			}
			if f.Hint != "" {
				fmt.Fprintln(out, "    "+ui.SubtleStyle.Render(f.Hint))
			}
		}

		if setup.Failed(findings) {
			return errors.New("host is not ready")
		}
		return nil
	},
}

// newHostCheck is replaced in tests
var newHostCheck = setup.NewHostCheck

func init() {
	rootCmd.AddCommand(doctorCmd)
}
