//go:build cgo

package libevdi

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerForTest(t *testing.T) {
	t.Helper()
	if err := Register(); err != nil {
		require.ErrorIs(t, err, ErrAlreadyRegistered)
	}
}

func newNativeContext(t *testing.T, h Handler) *EventContext {
	t.Helper()
	registerForTest(t)
	ec, err := NewEventContext(h)
	require.NoError(t, err)
	t.Cleanup(func() { ec.Close() })
	return ec
}

func TestTrampolinesForwardEveryKind(t *testing.T) {
	for _, ev := range sampleEvents() {
		t.Run(ev.Kind().String(), func(t *testing.T) {
			rec := &recordingHandler{}
			ec := newNativeContext(t, rec)

			require.NoError(t, ec.Emit(ev))

			calls := rec.snapshot()
			require.Len(t, calls, 1)
			assert.Same(t, ec, calls[0].ctx)
			assert.Equal(t, ev, calls[0].ev)
		})
	}
}

func TestModeChangedScenario(t *testing.T) {
	var (
		got   []ModeChangedEvent
		ctxs  []*EventContext
		other int
	)
	h := HandlerFuncs{
		OnModeChanged: func(ctx *EventContext, ev ModeChangedEvent) {
			got = append(got, ev)
			ctxs = append(ctxs, ctx)
		},
		OnPowerState:      func(*EventContext, PowerStateEvent) { other++ },
		OnFrameReady:      func(*EventContext, FrameReadyEvent) { other++ },
		OnControllerState: func(*EventContext, ControllerStateEvent) { other++ },
		OnCursorSet:       func(*EventContext, CursorSetEvent) { other++ },
		OnCursorMove:      func(*EventContext, CursorMoveEvent) { other++ },
		OnChannelData:     func(*EventContext, ChannelDataEvent) { other++ },
	}
	c1 := newNativeContext(t, h)

	require.NoError(t, c1.Emit(ModeChangedEvent{Width: 1920, Height: 1080, BitsPerPixel: 32, RefreshRate: 60}))

	require.Len(t, got, 1)
	assert.Equal(t, uint32(1920), got[0].Width)
	assert.Equal(t, uint32(1080), got[0].Height)
	assert.Equal(t, uint32(32), got[0].BitsPerPixel)
	assert.Equal(t, uint32(60), got[0].RefreshRate)
	assert.Same(t, c1, ctxs[0])
	assert.Zero(t, other)
}

func TestBufferPayloadsAreCopied(t *testing.T) {
	var got CursorSetEvent
	ec := newNativeContext(t, HandlerFuncs{
		OnCursorSet: func(_ *EventContext, ev CursorSetEvent) { got = ev },
	})

	src := []byte{9, 8, 7, 6}
	require.NoError(t, ec.Emit(CursorSetEvent{Width: 1, Height: 1, Stride: 4, Buffer: src}))

	src[0] = 0
	assert.Equal(t, []byte{9, 8, 7, 6}, got.Buffer)
}

func TestEmptyBufferPayload(t *testing.T) {
	var got ChannelDataEvent
	ec := newNativeContext(t, HandlerFuncs{
		OnChannelData: func(_ *EventContext, ev ChannelDataEvent) { got = ev },
	})

	require.NoError(t, ec.Emit(ChannelDataEvent{Address: 0x37, Flags: 2}))
	assert.Equal(t, ChannelDataEvent{Address: 0x37, Flags: 2}, got)
}

func TestTrampolineContainsPanic(t *testing.T) {
	registerForTest(t)
	logs := captureLogs(t)

	ec := newNativeContext(t, HandlerFuncs{
		OnFrameReady: func(*EventContext, FrameReadyEvent) { panic("handler exploded") },
	})

	assert.NotPanics(t, func() {
		require.NoError(t, ec.Emit(FrameReadyEvent{ControllerID: 2}))
	})

	lines := logs.snapshot()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "handler exploded")
}

func TestConcurrentTrampolines(t *testing.T) {
	const n = 32

	handlers := make([]*recordingHandler, n)
	contexts := make([]*EventContext, n)
	for i := range handlers {
		handlers[i] = &recordingHandler{}
		contexts[i] = newNativeContext(t, handlers[i])
	}

	var wg sync.WaitGroup
	errs := make(chan error, n*2)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- contexts[i].Emit(CursorMoveEvent{X: int32(i), Y: int32(i * 2)})
			errs <- contexts[i].Emit(FrameReadyEvent{ControllerID: int32(i)})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	for i, h := range handlers {
		calls := h.snapshot()
		require.Len(t, calls, 2, "context %d", i)
		assert.Equal(t, CursorMoveEvent{X: int32(i), Y: int32(i * 2)}, calls[0].ev)
		assert.Equal(t, FrameReadyEvent{ControllerID: int32(i)}, calls[1].ev)
	}
}

func TestLogFormatter(t *testing.T) {
	registerForTest(t)

	t.Run("renders printf arguments", func(t *testing.T) {
		logs := captureLogs(t)
		emitLogIntString("%d items, %s", 3, "ok")
		assert.Equal(t, []string{"3 items, ok"}, logs.snapshot())
	})

	t.Run("passes message verbatim", func(t *testing.T) {
		logs := captureLogs(t)
		EmitLog("100% done")
		assert.Equal(t, []string{"100% done"}, logs.snapshot())
	})

	t.Run("null format degrades to sentinel", func(t *testing.T) {
		logs := captureLogs(t)
		assert.NotPanics(t, emitLogNullFormat)
		assert.Equal(t, []string{NullFormatMessage}, logs.snapshot())
	})

	t.Run("long message", func(t *testing.T) {
		logs := captureLogs(t)
		long := make([]byte, 8192)
		for i := range long {
			long[i] = 'a' + byte(i%26)
		}
		emitLogIntString("%d:%s", len(long), string(long))
		require.Len(t, logs.snapshot(), 1)
		assert.Equal(t, "8192:"+string(long), logs.snapshot()[0])
	})

	t.Run("concurrent callers", func(t *testing.T) {
		logs := captureLogs(t)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				emitLogIntString("worker %d says %s", i, "hi")
			}(i)
		}
		wg.Wait()

		lines := logs.snapshot()
		require.Len(t, lines, 50)
		seen := make(map[string]bool)
		for _, l := range lines {
			seen[l] = true
		}
		for i := 0; i < 50; i++ {
			assert.True(t, seen[fmt.Sprintf("worker %d says hi", i)], "missing line for worker %d", i)
		}
	})
}

func TestLoggerReplacementThroughFormatter(t *testing.T) {
	registerForTest(t)
	first := captureLogs(t)
	EmitLog("before")

	second := &logCapture{}
	SetLogger(second.log)
	EmitLog("after")

	assert.Equal(t, []string{"before"}, first.snapshot())
	assert.Equal(t, []string{"after"}, second.snapshot())
}

func TestRegisterLifecycle(t *testing.T) {
	registerForTest(t)
	assert.True(t, Registered())
	assert.ErrorIs(t, Register(), ErrAlreadyRegistered)
	assert.True(t, Registered())

	Shutdown()
	assert.False(t, Registered())

	_, err := NewEventContext(&recordingHandler{})
	assert.ErrorIs(t, err, ErrNotRegistered)

	require.NoError(t, Register())
	assert.True(t, Registered())
}

func TestEmitAfterClose(t *testing.T) {
	registerForTest(t)
	ec, err := NewEventContext(&recordingHandler{})
	require.NoError(t, err)
	require.NoError(t, ec.Close())

	assert.ErrorIs(t, ec.Emit(CursorMoveEvent{}), ErrClosed)
}

// growStack forces the goroutine stack to be copied several times
//
//go:noinline
func growStack(n int) int {
	var pad [512]byte
	pad[n%len(pad)] = byte(n)
	if n == 0 {
		return int(pad[0])
	}
	return growStack(n-1) + int(pad[n%len(pad)])
}

func TestContextIDIsNativeAddress(t *testing.T) {
	ec := newNativeContext(t, &recordingHandler{})

	assert.Equal(t, uintptr(ec.native), ec.ID())
	assert.Greater(t, ec.ID(), uintptr(4096))
}

func TestTrampolineSurvivesStackGrowth(t *testing.T) {
	var handled atomic.Int64
	grow := func() {
		if growStack(2000) >= 0 {
			handled.Add(1)
		}
	}
	ec := newNativeContext(t, HandlerFuncs{
		OnPowerState:      func(*EventContext, PowerStateEvent) { grow() },
		OnModeChanged:     func(*EventContext, ModeChangedEvent) { grow() },
		OnFrameReady:      func(*EventContext, FrameReadyEvent) { grow() },
		OnControllerState: func(*EventContext, ControllerStateEvent) { grow() },
		OnCursorSet:       func(*EventContext, CursorSetEvent) { grow() },
		OnCursorMove:      func(*EventContext, CursorMoveEvent) { grow() },
		OnChannelData:     func(*EventContext, ChannelDataEvent) { grow() },
	})

	// each goroutine starts on a minimal stack
	var wg sync.WaitGroup
	errs := make(chan error, len(sampleEvents())*4)
	for round := 0; round < 4; round++ {
		for _, ev := range sampleEvents() {
			wg.Add(1)
			go func(ev Event) {
				defer wg.Done()
				errs <- ec.Emit(ev)
			}(ev)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(len(sampleEvents())*4), handled.Load())
}

func TestCopyNative(t *testing.T) {
	assert.Nil(t, copyNative(nil, 16))

	src := []byte{1, 2, 3, 4}
	p := unsafe.Pointer(&src[0])
	assert.Nil(t, copyNative(p, 0))

	got := copyNative(p, uint32(len(src)))
	src[0] = 9
	assert.Equal(t, []byte{1, 2, 3, 4}, got)

	assert.Panics(t, func() { copyNative(p, maxNativeBuffer+1) })
}

func TestOversizedNativeBufferIsContained(t *testing.T) {
	logs := captureLogs(t)
	rec := &recordingHandler{}
	ec := newNativeContext(t, rec)

	src := []byte{1}
	assert.NotPanics(t, func() {
		deliverFunc(ec.ID(), KindCursorSet, func() Event {
			return CursorSetEvent{Buffer: copyNative(unsafe.Pointer(&src[0]), 1<<31)}
		})
	})

	assert.Empty(t, rec.snapshot())
	lines := logs.snapshot()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "cursor_set")
	assert.Contains(t, lines[0], "exceeds")
}

func TestCheckFormatter(t *testing.T) {
	logs := captureLogs(t)

	require.NoError(t, CheckFormatter())
	assert.Empty(t, logs.snapshot(), "check lines stay out of the active sink")

	EmitLog("after check")
	assert.Equal(t, []string{"after check"}, logs.snapshot())
}
