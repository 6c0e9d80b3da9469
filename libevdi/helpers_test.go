package libevdi

import (
	"sync"
	"testing"
)

type call struct {
	ctx *EventContext
	ev  Event
}

// recordingHandler records every delivered event
type recordingHandler struct {
	mu    sync.Mutex
	calls []call
}

func (r *recordingHandler) add(ctx *EventContext, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{ctx: ctx, ev: ev})
}

func (r *recordingHandler) snapshot() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

func (r *recordingHandler) PowerState(ctx *EventContext, ev PowerStateEvent)   { r.add(ctx, ev) }
func (r *recordingHandler) ModeChanged(ctx *EventContext, ev ModeChangedEvent) { r.add(ctx, ev) }
func (r *recordingHandler) FrameReady(ctx *EventContext, ev FrameReadyEvent)   { r.add(ctx, ev) }
func (r *recordingHandler) ControllerState(ctx *EventContext, ev ControllerStateEvent) {
	r.add(ctx, ev)
}
func (r *recordingHandler) CursorSet(ctx *EventContext, ev CursorSetEvent)     { r.add(ctx, ev) }
func (r *recordingHandler) CursorMove(ctx *EventContext, ev CursorMoveEvent)   { r.add(ctx, ev) }
func (r *recordingHandler) ChannelData(ctx *EventContext, ev ChannelDataEvent) { r.add(ctx, ev) }

// logCapture collects lines written to the process-wide sink
type logCapture struct {
	mu    sync.Mutex
	lines []string
}

func (c *logCapture) log(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, message)
}

func (c *logCapture) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func captureLogs(t *testing.T) *logCapture {
	t.Helper()
	c := &logCapture{}
	prev := SetLogger(c.log)
	t.Cleanup(func() { SetLogger(prev) })
	return c
}

// sampleEvents holds one event of every kind
func sampleEvents() []Event {
	return []Event{
		PowerStateEvent{Mode: DPMSStandby},
		ModeChangedEvent{Width: 2560, Height: 1440, BitsPerPixel: 32, RefreshRate: 144, PixelFormat: 0x34325241},
		FrameReadyEvent{ControllerID: 7},
		ControllerStateEvent{State: 1},
		CursorSetEvent{
			HotX: 3, HotY: -2, Width: 2, Height: 2, Stride: 8, PixelFormat: 0x34325241,
			Enabled: true,
			Buffer:  []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		},
		CursorMoveEvent{X: -40, Y: 1200},
		ChannelDataEvent{Address: 0x37, Flags: 1, Buffer: []byte{0x51, 0x82, 0x01, 0x10}},
	}
}
