// Package display keeps virtual monitors alive on top of libevdi nodes
package display

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bnema/openvd/internal/edid"
	"github.com/bnema/openvd/internal/eventlog"
	"github.com/bnema/openvd/internal/logger"
	"github.com/bnema/openvd/libevdi"
	"github.com/charmbracelet/log"
)

// Node is the subset of *libevdi.Node a Display drives
type Node interface {
	Connect(edid []byte, widthLimit, heightLimit, fpsLimit uint) error
	Disconnect() error
	EnableCursorEvents(enable bool) error
	CreateBuffer(width, height, stride int) (*libevdi.Buffer, error)
	RemoveBuffer(buf *libevdi.Buffer) error
	RequestUpdate(buf *libevdi.Buffer) (bool, error)
	GrabPixels(buf *libevdi.Buffer) ([]libevdi.Rect, error)
	WaitForEvents(ctx context.Context, timeout time.Duration) (bool, error)
	HandleEvents(ec *libevdi.EventContext) error
	Close() error
}

// Notification is handed to observers such as the live UI. Display is -1 for
// process-wide libevdi log lines.
type Notification struct {
	Display int
	Name    string
	Time    time.Time
	Event   libevdi.Event
	Message string
}

// Stats is a point-in-time view of a display
type Stats struct {
	Index     int
	Name      string
	Mode      libevdi.ModeChangedEvent
	Power     libevdi.DPMSMode
	CRTCState int32
	CursorX   int32
	CursorY   int32
	Cursor    bool
	Frames    uint64
	Rects     uint64
	Events    uint64
	Dropped   uint64
	LastEvent time.Time
}

// Observer receives every event a Display sees
type Observer struct {
	Recorder *eventlog.Writer
	Notify   chan<- Notification
}

// Display is one virtual monitor. It implements libevdi.Handler; its methods
// run on the thread that called HandleEvents, so they only touch local state
// and hand notifications off without blocking.
type Display struct {
	Index int
	Name  string
	Modes []edid.Mode

	node     Node
	observer Observer

	mu      sync.Mutex
	stats   Stats
	buffer  *libevdi.Buffer
	pending bool

	dropped atomic.Uint64
}

// New creates a display. node may be nil for replay, in which case no
// framebuffer is managed.
func New(index int, name string, modes []edid.Mode, node Node, observer Observer) *Display {
	return &Display{
		Index:    index,
		Name:     name,
		Modes:    modes,
		node:     node,
		observer: observer,
		stats:    Stats{Index: index, Name: name, Power: libevdi.DPMSOff},
	}
}

// log is resolved per call so that output redirection applies
func (d *Display) log() *log.Logger {
	return logger.With("display", d.Name)
}

// Stats returns a snapshot of the display state
func (d *Display) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Dropped = d.dropped.Load()
	return s
}

// Limits returns the largest width, height and refresh over the display modes
func (d *Display) Limits() (width, height, refresh uint) {
	for _, m := range d.Modes {
		width = max(width, uint(m.Width))
		height = max(height, uint(m.Height))
		refresh = max(refresh, uint(m.Refresh))
	}
	return width, height, refresh
}

func (d *Display) PowerState(_ *libevdi.EventContext, ev libevdi.PowerStateEvent) {
	d.log().Info("Power state changed", "dpms", ev.Mode)
	d.update(ev, func(s *Stats) { s.Power = ev.Mode })
}

func (d *Display) ModeChanged(_ *libevdi.EventContext, ev libevdi.ModeChangedEvent) {
	d.log().Info("Mode changed",
		"width", ev.Width, "height", ev.Height,
		"bpp", ev.BitsPerPixel, "refresh", ev.RefreshRate)
	d.update(ev, func(s *Stats) { s.Mode = ev })

	if d.node == nil {
		return
	}
	if err := d.replaceBuffer(ev); err != nil {
		d.log().Error("Failed to allocate framebuffer", "err", err)
		return
	}
	d.RequestFrame()
}

func (d *Display) FrameReady(_ *libevdi.EventContext, ev libevdi.FrameReadyEvent) {
	d.update(ev, nil)

	if d.node == nil {
		return
	}
	d.mu.Lock()
	d.pending = false
	d.mu.Unlock()
	d.grab()
}

func (d *Display) ControllerState(_ *libevdi.EventContext, ev libevdi.ControllerStateEvent) {
	d.log().Debug("CRTC state", "state", ev.State)
	d.update(ev, func(s *Stats) { s.CRTCState = ev.State })
}

func (d *Display) CursorSet(_ *libevdi.EventContext, ev libevdi.CursorSetEvent) {
	d.log().Debug("Cursor set",
		"enabled", ev.Enabled, "width", ev.Width, "height", ev.Height,
		"hot_x", ev.HotX, "hot_y", ev.HotY, "bytes", len(ev.Buffer))
	d.update(ev, func(s *Stats) { s.Cursor = ev.Enabled })
}

func (d *Display) CursorMove(_ *libevdi.EventContext, ev libevdi.CursorMoveEvent) {
	d.update(ev, func(s *Stats) {
		s.CursorX = ev.X
		s.CursorY = ev.Y
	})
}

func (d *Display) ChannelData(_ *libevdi.EventContext, ev libevdi.ChannelDataEvent) {
	d.log().Debug("DDC/CI data", "address", ev.Address, "flags", ev.Flags, "bytes", len(ev.Buffer))
	d.update(ev, nil)
}

// RequestFrame asks the node for the next frame unless one is already
// pending. An immediately available frame is grabbed right away.
func (d *Display) RequestFrame() {
	d.mu.Lock()
	buf := d.buffer
	if buf == nil || d.pending || d.node == nil {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	ready, err := d.node.RequestUpdate(buf)
	if err != nil {
		d.log().Warn("Request update failed", "err", err)
		return
	}
	if ready {
		d.grab()
		return
	}

	d.mu.Lock()
	d.pending = true
	d.mu.Unlock()
}

func (d *Display) grab() {
	d.mu.Lock()
	buf := d.buffer
	d.mu.Unlock()
	if buf == nil {
		return
	}

	rects, err := d.node.GrabPixels(buf)
	if err != nil {
		d.log().Warn("Grab pixels failed", "err", err)
		return
	}

	d.mu.Lock()
	d.stats.Frames++
	d.stats.Rects += uint64(len(rects))
	d.mu.Unlock()
}

func (d *Display) replaceBuffer(mode libevdi.ModeChangedEvent) error {
	if mode.Width == 0 || mode.Height == 0 {
		return errors.New("mode has no area")
	}

	bpp := int(mode.BitsPerPixel)
	if bpp == 0 {
		bpp = 32
	}
	stride := int(mode.Width) * ((bpp + 7) / 8)

	d.mu.Lock()
	old := d.buffer
	d.buffer = nil
	d.pending = false
	d.mu.Unlock()

	if old != nil {
		if err := d.node.RemoveBuffer(old); err != nil {
			d.log().Warn("Failed to remove old framebuffer", "err", err)
		}
	}

	buf, err := d.node.CreateBuffer(int(mode.Width), int(mode.Height), stride)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.buffer = buf
	d.mu.Unlock()
	return nil
}

// update applies fn to the stats, then records and publishes ev
func (d *Display) update(ev libevdi.Event, fn func(s *Stats)) {
	now := time.Now()

	d.mu.Lock()
	if fn != nil {
		fn(&d.stats)
	}
	d.stats.Events++
	d.stats.LastEvent = now
	d.mu.Unlock()

	if d.observer.Recorder != nil {
		rec := eventlog.Record{Time: now, Display: d.Index, Event: ev}
		if err := d.observer.Recorder.Write(rec); err != nil {
			d.log().Warn("Failed to record event", "kind", ev.Kind(), "err", err)
		}
	}

	d.publish(Notification{Display: d.Index, Name: d.Name, Time: now, Event: ev})
}

func (d *Display) publish(n Notification) {
	if d.observer.Notify == nil {
		return
	}
	select {
	case d.observer.Notify <- n:
	default:
		d.dropped.Add(1)
	}
}

// release frees the framebuffer
func (d *Display) release() {
	d.mu.Lock()
	buf := d.buffer
	d.buffer = nil
	d.mu.Unlock()

	if buf != nil && d.node != nil {
		if err := d.node.RemoveBuffer(buf); err != nil {
			d.log().Debug("Remove framebuffer", "err", err)
		}
	}
}
