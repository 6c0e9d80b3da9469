package cmd

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/bnema/openvd/internal/config"
	"github.com/bnema/openvd/internal/edid"
	"github.com/bnema/openvd/internal/logger"
	"github.com/bnema/openvd/internal/ui"
	"github.com/spf13/cobra"
)

var (
	edidModes  []string
	edidOutput string
)

var edidCmd = &cobra.Command{
	Use:   "edid",
	Short: "Generate an EDID block for a set of modes",
	Long: `Generate the 128-byte EDID openvd advertises for a display. The first
--mode is the preferred timing. Without --output a hex dump is printed.`,
	Example: `  openvd edid --mode 2560x1440@60 --mode 1920x1080@60 -o desk.edid`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(edidModes) == 0 {
			return fmt.Errorf("at least one --mode is required")
		}

		modes := make([]edid.Mode, len(edidModes))
		for i, s := range edidModes {
			m, err := config.ParseMode(s)
			if err != nil {
				return err
			}
			modes[i] = edid.Mode{Width: m.Width, Height: m.Height, Refresh: m.Refresh}
		}

		block, err := edid.Generate(modes)
		if err != nil {
			return err
		}

		if edidOutput == "" {
			fmt.Fprint(cmd.OutOrStdout(), hex.Dump(block))
			return nil
		}

		if err := os.WriteFile(edidOutput, block, 0644); err != nil {
			return fmt.Errorf("failed to write EDID: %w", err)
		}
		logger.Infof("EDID written to %s", edidOutput)
		return nil
	},
}

var edidDecodeCmd = &cobra.Command{
	Use:   "decode <file>",
	Short: "List the modes advertised by an EDID file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		modes, err := edid.Modes(b)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for i, m := range modes {
			fmt.Fprintln(out, ui.FormatListItem(m.String(), i == 0))
		}
		return nil
	},
}

func init() {
	edidCmd.Flags().StringArrayVarP(&edidModes, "mode", "m", nil, "Mode as WIDTHxHEIGHT[@REFRESH], repeatable")
	edidCmd.Flags().StringVarP(&edidOutput, "output", "o", "", "Write the binary EDID to this file")

	edidCmd.AddCommand(edidDecodeCmd)
	rootCmd.AddCommand(edidCmd)
}
