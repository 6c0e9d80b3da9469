package display

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/bnema/openvd/internal/edid"
	"github.com/bnema/openvd/internal/eventlog"
	"github.com/bnema/openvd/libevdi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fullHD = libevdi.ModeChangedEvent{Width: 1920, Height: 1080, BitsPerPixel: 32, RefreshRate: 60}

func TestModeChangeAllocatesFramebuffer(t *testing.T) {
	node := &fakeNode{rects: []libevdi.Rect{{X2: 1920, Y2: 1080}}}
	d := New(0, "test", nil, node, Observer{})

	d.ModeChanged(nil, fullHD)

	require.Len(t, node.created, 1)
	buf := node.created[0]
	assert.Equal(t, 1920, buf.Width)
	assert.Equal(t, 1080, buf.Height)
	assert.Equal(t, 1920*4, buf.Stride)

	requests, grabs := node.counts()
	assert.Equal(t, 1, requests)
	assert.Equal(t, 0, grabs, "frame is not ready until update_ready")

	d.FrameReady(nil, libevdi.FrameReadyEvent{})

	_, grabs = node.counts()
	assert.Equal(t, 1, grabs)

	stats := d.Stats()
	assert.Equal(t, fullHD, stats.Mode)
	assert.Equal(t, uint64(1), stats.Frames)
	assert.Equal(t, uint64(1), stats.Rects)
	assert.Equal(t, uint64(2), stats.Events)
}

func TestModeChangeReplacesFramebuffer(t *testing.T) {
	node := &fakeNode{}
	d := New(0, "test", nil, node, Observer{})

	d.ModeChanged(nil, fullHD)
	d.ModeChanged(nil, libevdi.ModeChangedEvent{Width: 1280, Height: 720, BitsPerPixel: 16, RefreshRate: 60})

	require.Len(t, node.created, 2)
	require.Len(t, node.removed, 1)
	assert.Same(t, node.created[0], node.removed[0])
	assert.Equal(t, 1280*2, node.created[1].Stride)

	d.release()
	require.Len(t, node.removed, 2)
	assert.Same(t, node.created[1], node.removed[1])
}

func TestModeChangeWithoutArea(t *testing.T) {
	node := &fakeNode{}
	d := New(0, "test", nil, node, Observer{})

	d.ModeChanged(nil, libevdi.ModeChangedEvent{})

	assert.Empty(t, node.created)
	requests, _ := node.counts()
	assert.Zero(t, requests)
}

func TestRequestFrame(t *testing.T) {
	t.Run("immediately ready", func(t *testing.T) {
		node := &fakeNode{updateReady: true, rects: []libevdi.Rect{{X2: 10, Y2: 10}, {X1: 20, X2: 30, Y2: 5}}}
		d := New(0, "test", nil, node, Observer{})

		d.ModeChanged(nil, fullHD)
		d.RequestFrame()

		requests, grabs := node.counts()
		assert.Equal(t, 2, requests)
		assert.Equal(t, 2, grabs)
		assert.Equal(t, uint64(4), d.Stats().Rects)
	})

	t.Run("pending request is not repeated", func(t *testing.T) {
		node := &fakeNode{}
		d := New(0, "test", nil, node, Observer{})

		d.ModeChanged(nil, fullHD)
		d.RequestFrame()
		d.RequestFrame()

		requests, _ := node.counts()
		assert.Equal(t, 1, requests)

		d.FrameReady(nil, libevdi.FrameReadyEvent{})
		d.RequestFrame()

		requests, _ = node.counts()
		assert.Equal(t, 2, requests)
	})

	t.Run("no framebuffer yet", func(t *testing.T) {
		node := &fakeNode{}
		d := New(0, "test", nil, node, Observer{})

		d.RequestFrame()

		requests, _ := node.counts()
		assert.Zero(t, requests)
	})
}

func TestStatsTracking(t *testing.T) {
	d := New(3, "side", nil, nil, Observer{})
	assert.Equal(t, libevdi.DPMSOff, d.Stats().Power)

	d.PowerState(nil, libevdi.PowerStateEvent{Mode: libevdi.DPMSOn})
	d.ControllerState(nil, libevdi.ControllerStateEvent{State: 1})
	d.CursorSet(nil, libevdi.CursorSetEvent{Enabled: true, Width: 32, Height: 32})
	d.CursorMove(nil, libevdi.CursorMoveEvent{X: 100, Y: -5})
	d.ChannelData(nil, libevdi.ChannelDataEvent{Address: 0x37})
	d.ModeChanged(nil, fullHD)
	d.FrameReady(nil, libevdi.FrameReadyEvent{})

	stats := d.Stats()
	assert.Equal(t, 3, stats.Index)
	assert.Equal(t, "side", stats.Name)
	assert.Equal(t, libevdi.DPMSOn, stats.Power)
	assert.Equal(t, int32(1), stats.CRTCState)
	assert.True(t, stats.Cursor)
	assert.Equal(t, int32(100), stats.CursorX)
	assert.Equal(t, int32(-5), stats.CursorY)
	assert.Equal(t, fullHD, stats.Mode)
	assert.Equal(t, uint64(7), stats.Events)
	assert.Zero(t, stats.Frames, "no framebuffer without a node")
	assert.False(t, stats.LastEvent.IsZero())
}

func TestEventsAreRecorded(t *testing.T) {
	var out bytes.Buffer
	w := eventlog.NewWriter(&out)
	d := New(1, "test", nil, nil, Observer{Recorder: w})

	events := []libevdi.Event{
		libevdi.PowerStateEvent{Mode: libevdi.DPMSStandby},
		fullHD,
		libevdi.CursorMoveEvent{X: 4, Y: 2},
	}
	d.PowerState(nil, events[0].(libevdi.PowerStateEvent))
	d.ModeChanged(nil, events[1].(libevdi.ModeChangedEvent))
	d.CursorMove(nil, events[2].(libevdi.CursorMoveEvent))
	assert.Equal(t, 3, w.Count())

	r := eventlog.NewReader(&out)
	for _, want := range events {
		rec, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, 1, rec.Display)
		assert.Equal(t, want, rec.Event)
	}
	_, err := r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestNotificationsNeverBlock(t *testing.T) {
	notify := make(chan Notification, 1)
	d := New(0, "test", nil, nil, Observer{Notify: notify})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			d.CursorMove(nil, libevdi.CursorMoveEvent{X: int32(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler blocked on a full notification channel")
	}

	n := <-notify
	assert.Equal(t, "test", n.Name)
	assert.Equal(t, libevdi.CursorMoveEvent{X: 0}, n.Event)
	assert.Equal(t, uint64(9), d.Stats().Dropped)
}

func TestLimits(t *testing.T) {
	d := New(0, "test", []edid.Mode{
		{Width: 1920, Height: 1080, Refresh: 60},
		{Width: 2560, Height: 1080, Refresh: 50},
		{Width: 1280, Height: 1440, Refresh: 144},
	}, nil, Observer{})

	width, height, refresh := d.Limits()
	assert.Equal(t, uint(2560), width)
	assert.Equal(t, uint(1440), height)
	assert.Equal(t, uint(144), refresh)
}

func TestLogSink(t *testing.T) {
	var out bytes.Buffer
	w := eventlog.NewWriter(&out)
	notify := make(chan Notification, 4)

	sink := LogSink(Observer{Recorder: w, Notify: notify})
	sink("evdi_connect: 128 bytes")

	n := <-notify
	assert.Equal(t, -1, n.Display)
	assert.Equal(t, "evdi_connect: 128 bytes", n.Message)

	rec, err := eventlog.NewReader(&out).Next()
	require.NoError(t, err)
	assert.Equal(t, -1, rec.Display)
	assert.Equal(t, "evdi_connect: 128 bytes", rec.Log)
	assert.Nil(t, rec.Event)
}
