package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/bnema/openvd/internal/display"
	"github.com/bnema/openvd/internal/eventlog"
	"github.com/bnema/openvd/internal/logger"
	"github.com/bnema/openvd/internal/ui"
	"github.com/bnema/openvd/libevdi"
	"github.com/spf13/cobra"
)

var replaySpeed float64

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Replay a recorded event log through the libevdi callbacks",
	Long: `Feed a file written by 'openvd run --record' back through the native
libevdi callback table, exactly as evdi_handle_events would, without touching
any EVDI device. Use --speed 0 to replay as fast as possible.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().Float64VarP(&replaySpeed, "speed", "s", 1, "Playback speed multiplier, 0 for no delay")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := libevdi.Register(); err != nil {
		return fmt.Errorf("failed to register libevdi bridge: %w", err)
	}
	defer libevdi.Shutdown()

	out := cmd.OutOrStdout()
	libevdi.SetLogger(func(message string) {
		fmt.Fprintln(out, ui.LogLineStyle.Render(message))
	})

	rp := display.NewReplayer(replaySpeed, display.Observer{})
	defer rp.Close()

	logger.Info("Replaying event log", "path", args[0], "speed", replaySpeed)
	count, err := rp.Run(ctx, eventlog.NewReader(f))
	if err != nil {
		return fmt.Errorf("replay stopped after %d records: %w", count, err)
	}

	displays := rp.Displays()
	indexes := make([]int, 0, len(displays))
	for i := range displays {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	stats := make([]display.Stats, len(indexes))
	for i, idx := range indexes {
		stats[i] = displays[idx].Stats()
	}

	fmt.Fprintln(out, ui.FormatSuccess(fmt.Sprintf("Replayed %d records", count)))
	if len(stats) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, ui.RenderStats(stats))
	}
	return nil
}
