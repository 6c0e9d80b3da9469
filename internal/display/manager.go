package display

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/openvd/internal/config"
	"github.com/bnema/openvd/internal/edid"
	"github.com/bnema/openvd/internal/eventlog"
	"github.com/bnema/openvd/internal/logger"
	"github.com/bnema/openvd/libevdi"
)

// ErrNoDisplays is returned by Start when nothing is configured
var ErrNoDisplays = errors.New("no displays configured")

// Opener returns a node for one display
type Opener func(parentDevice string) (Node, error)

// OpenNode opens a real libevdi node
func OpenNode(parentDevice string) (Node, error) {
	n, err := libevdi.Open(parentDevice)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Options configures a Manager
type Options struct {
	EVDI     config.EVDIConfig
	Observer Observer

	// Open defaults to OpenNode
	Open Opener
	// AddDevice defaults to libevdi.AddDevice and is only used when
	// EVDI.AddDevice is set
	AddDevice func() error
}

type managed struct {
	display *Display
	node    Node
	ec      *libevdi.EventContext
}

// Manager keeps one Display per configured monitor and polls their nodes
type Manager struct {
	opts Options

	mu       sync.Mutex
	displays []*managed
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	errs     chan error
}

// NewManager creates a Manager. libevdi.Register must have been called
// before Start.
func NewManager(opts Options) *Manager {
	if opts.Open == nil {
		opts.Open = OpenNode
	}
	if opts.AddDevice == nil {
		opts.AddDevice = libevdi.AddDevice
	}
	if opts.EVDI.PollTimeoutMs <= 0 {
		opts.EVDI.PollTimeoutMs = config.DefaultConfig.EVDI.PollTimeoutMs
	}
	return &Manager{opts: opts}
}

// Start brings up every display and starts one polling goroutine per node.
// If any display fails, the ones already opened are torn down again.
func (m *Manager) Start(ctx context.Context, displays []config.DisplayConfig) error {
	if len(displays) == 0 {
		return ErrNoDisplays
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return errors.New("display manager already started")
	}

	opened := make([]*managed, 0, len(displays))
	for i, dc := range displays {
		md, err := m.open(i, dc)
		if err != nil {
			for _, o := range opened {
				o.close()
			}
			return fmt.Errorf("display %q: %w", dc.Name, err)
		}
		opened = append(opened, md)
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.displays = opened
	m.errs = make(chan error, len(opened))

	for _, md := range opened {
		m.wg.Add(1)
		go func(md *managed) {
			defer m.wg.Done()
			if err := m.poll(runCtx, md); err != nil {
				m.errs <- fmt.Errorf("display %q: %w", md.display.Name, err)
			}
		}(md)
	}

	logger.Info("Virtual displays started", "count", len(opened))
	return nil
}

func (m *Manager) open(index int, dc config.DisplayConfig) (*managed, error) {
	modes := make([]edid.Mode, len(dc.Modes))
	for i, mc := range dc.Modes {
		modes[i] = edid.Mode{Width: mc.Width, Height: mc.Height, Refresh: mc.Refresh}
	}

	block, err := edid.Generate(modes)
	if err != nil {
		return nil, err
	}

	if m.opts.EVDI.AddDevice {
		if err := m.opts.AddDevice(); err != nil {
			return nil, fmt.Errorf("failed to add evdi device: %w", err)
		}
	}

	node, err := m.opts.Open(m.opts.EVDI.ParentDevice)
	if err != nil {
		return nil, fmt.Errorf("failed to open evdi node: %w", err)
	}

	d := New(index, dc.Name, modes, node, m.opts.Observer)

	ec, err := libevdi.NewEventContext(d)
	if err != nil {
		node.Close()
		return nil, err
	}
	md := &managed{display: d, node: node, ec: ec}

	width, height, refresh := d.Limits()
	if err := node.Connect(block, width, height, refresh); err != nil {
		md.close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := node.EnableCursorEvents(m.opts.EVDI.CursorEvents); err != nil {
		logger.Warn("Failed to configure cursor events", "display", dc.Name, "err", err)
	}

	logger.Info("Display connected", "display", dc.Name, "modes", len(modes), "preferred", modes[0])
	return md, nil
}

func (m *Manager) poll(ctx context.Context, md *managed) error {
	timeout := time.Duration(m.opts.EVDI.PollTimeoutMs) * time.Millisecond

	for {
		md.display.RequestFrame()

		ready, err := md.node.WaitForEvents(ctx, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !ready {
			continue
		}
		if err := md.node.HandleEvents(md.ec); err != nil {
			return err
		}
	}
}

// Displays returns the running displays in configuration order
func (m *Manager) Displays() []*Display {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Display, len(m.displays))
	for i, md := range m.displays {
		out[i] = md.display
	}
	return out
}

// Snapshot returns the stats of every display
func (m *Manager) Snapshot() []Stats {
	displays := m.Displays()
	out := make([]Stats, len(displays))
	for i, d := range displays {
		out[i] = d.Stats()
	}
	return out
}

// Wait blocks until ctx is done or a polling goroutine fails
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	errs := m.errs
	m.mu.Unlock()
	if errs == nil {
		return errors.New("display manager not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errs:
		return err
	}
}

// Close stops polling and disconnects every display
func (m *Manager) Close() error {
	m.mu.Lock()
	cancel := m.cancel
	displays := m.displays
	m.cancel = nil
	m.displays = nil
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	m.wg.Wait()

	var errs []error
	for _, md := range displays {
		if err := md.close(); err != nil {
			errs = append(errs, fmt.Errorf("display %q: %w", md.display.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (md *managed) close() error {
	md.display.release()

	var errs []error
	if err := md.node.Disconnect(); err != nil {
		logger.Debug("Disconnect failed", "display", md.display.Name, "err", err)
	}
	if err := md.ec.Close(); err != nil && !errors.Is(err, libevdi.ErrClosed) {
		errs = append(errs, err)
	}
	if err := md.node.Close(); err != nil && !errors.Is(err, libevdi.ErrClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LogSink returns a libevdi log sink that writes native log lines to the
// application logger and hands them to the observer
func LogSink(observer Observer) libevdi.LogFunc {
	return func(message string) {
		libevdi.DefaultLogger(message)

		now := time.Now()
		if observer.Recorder != nil {
			if err := observer.Recorder.Write(eventlog.Record{Time: now, Display: -1, Log: message}); err != nil {
				logger.Warn("Failed to record evdi log line", "err", err)
			}
		}
		if observer.Notify != nil {
			select {
			case observer.Notify <- Notification{Display: -1, Time: now, Message: message}:
			default:
			}
		}
	}
}
