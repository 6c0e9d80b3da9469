package cmd

import (
	"errors"
	"fmt"

	"github.com/bnema/openvd/internal/ipc"
	"github.com/bnema/openvd/internal/ui"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the displays of a running openvd",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ipc.NewClient(socketPath)
		if err != nil {
			return err
		}

		stats, err := client.Status()
		if errors.Is(err, ipc.ErrNotRunning) {
			fmt.Fprintln(cmd.OutOrStdout(), ui.FormatStatus(false, "openvd is not running"))
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), ui.FormatStatus(true, fmt.Sprintf("openvd is running with %d display(s)", len(stats))))
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderStats(stats))
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask a running openvd to shut down",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ipc.NewClient(socketPath)
		if err != nil {
			return err
		}

		if err := client.Stop(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.FormatSuccess("Stop requested"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
}
