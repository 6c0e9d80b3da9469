package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/openvd/internal/config"
	"github.com/bnema/openvd/internal/display"
	"github.com/bnema/openvd/internal/eventlog"
	"github.com/bnema/openvd/internal/ipc"
	"github.com/bnema/openvd/internal/logger"
	"github.com/bnema/openvd/internal/ui"
	"github.com/bnema/openvd/libevdi"
	"github.com/spf13/cobra"
)

var (
	recordPath string
	runTUI     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create the configured virtual displays and keep them alive",
	Long: `Create one virtual display per [[displays]] entry, connect it with an EDID
built from its modes and keep serving frames until interrupted.
Opening EVDI nodes usually requires root.`,
	RunE: runDisplays,
}

func init() {
	runCmd.Flags().StringVarP(&recordPath, "record", "r", "", "Record every event to this file")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show a live view of displays and events")

	rootCmd.AddCommand(runCmd)
}

func runDisplays(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if len(cfg.Displays) == 0 {
		return fmt.Errorf("no displays configured in %s", config.GetConfigPath())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var observer display.Observer

	path := cfg.Record.Path
	if recordPath != "" {
		path = recordPath
	}
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create record file: %w", err)
		}
		defer f.Close()

		observer.Recorder = eventlog.NewWriter(f)
		defer func() {
			logger.Info("Recording written", "path", path, "records", observer.Recorder.Count())
		}()
	}

	var notify chan display.Notification
	if runTUI {
		notify = make(chan display.Notification, 256)
		observer.Notify = notify
	}

	if err := libevdi.Register(); err != nil {
		return fmt.Errorf("failed to register libevdi bridge: %w", err)
	}
	defer libevdi.Shutdown()

	if cfg.Logging.NativeLogs {
		libevdi.SetLogger(display.LogSink(observer))
	} else {
		libevdi.SetLogger(func(string) {})
	}

	logger.Info("Starting openvd", "version", Version, "libevdi", libevdi.LibraryVersion(), "displays", len(cfg.Displays))

	mgr := display.NewManager(display.Options{EVDI: cfg.EVDI, Observer: observer})
	if err := mgr.Start(ctx, cfg.Displays); err != nil {
		return err
	}

	control, err := ipc.NewSocketServer(socketPath, &daemonControl{mgr: mgr, cancel: cancel})
	if err != nil {
		logger.Warn("Control socket disabled", "err", err)
	} else if err := control.Start(); err != nil {
		logger.Warn("Control socket disabled", "err", err)
	} else {
		defer control.Stop()
	}

	if runTUI {
		err = runLive(ctx, mgr, notify)
	} else {
		err = mgr.Wait(ctx)
	}

	stats := mgr.Snapshot()
	if cerr := mgr.Close(); cerr != nil {
		logger.Warn("Failed to close displays cleanly", "err", cerr)
	}

	fmt.Fprintln(cmd.OutOrStdout(), ui.RenderStats(stats))

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runLive(ctx context.Context, mgr *display.Manager, notify chan display.Notification) error {
	// the live view owns the terminal, keep log lines off it
	logger.SetOutput(io.Discard)
	defer logger.SetOutput(os.Stderr)

	liveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- mgr.Wait(liveCtx)
		cancel()
	}()

	if err := ui.RunLive(liveCtx, ui.LiveConfig{
		Title:         "openvd",
		Notifications: notify,
		Snapshot:      mgr.Snapshot,
	}); err != nil {
		return err
	}

	cancel()
	return <-errCh
}

// daemonControl answers control socket requests for a running manager
type daemonControl struct {
	mgr    *display.Manager
	cancel context.CancelFunc
}

func (d *daemonControl) Status() []display.Stats {
	return d.mgr.Snapshot()
}

func (d *daemonControl) Stop() error {
	logger.Info("Stop requested over control socket")
	d.cancel()
	return nil
}
