//go:build cgo

package libevdi

/*
#include "bridge.h"
*/
import "C"
import (
	"fmt"
	"slices"
	"sync"
	"unsafe"
)

// Emit invokes the native callback table of ec with ev, the same way libevdi
// does from evdi_handle_events. Buffers are copied into C memory for the
// duration of the call only. Replay tooling uses this to drive handlers
// without a kernel device.
func (ec *EventContext) Emit(ev Event) error {
	p, err := ec.nativeTable()
	if err != nil {
		return err
	}
	table := (*C.struct_evdi_event_context)(p)

	switch e := ev.(type) {
	case PowerStateEvent:
		C.bridge_emit_dpms(table, C.int(e.Mode))
	case ModeChangedEvent:
		C.bridge_emit_mode_changed(table, C.struct_evdi_mode{
			width:          C.int(e.Width),
			height:         C.int(e.Height),
			refresh_rate:   C.int(e.RefreshRate),
			bits_per_pixel: C.int(e.BitsPerPixel),
			pixel_format:   C.uint(e.PixelFormat),
		})
	case FrameReadyEvent:
		C.bridge_emit_update_ready(table, C.int(e.ControllerID))
	case ControllerStateEvent:
		C.bridge_emit_crtc_state(table, C.int(e.State))
	case CursorSetEvent:
		buf := cBytes(e.Buffer)
		defer C.free(buf)

		var enabled C.uint8_t
		if e.Enabled {
			enabled = 1
		}
		C.bridge_emit_cursor_set(table, C.struct_evdi_cursor_set{
			hot_x:         C.int32_t(e.HotX),
			hot_y:         C.int32_t(e.HotY),
			width:         C.uint32_t(e.Width),
			height:        C.uint32_t(e.Height),
			enabled:       enabled,
			buffer_length: C.uint32_t(len(e.Buffer)),
			buffer:        (*C.uint32_t)(buf),
			pixel_format:  C.uint32_t(e.PixelFormat),
			stride:        C.uint32_t(e.Stride),
		})
	case CursorMoveEvent:
		C.bridge_emit_cursor_move(table, C.struct_evdi_cursor_move{
			x: C.int32_t(e.X),
			y: C.int32_t(e.Y),
		})
	case ChannelDataEvent:
		buf := cBytes(e.Buffer)
		defer C.free(buf)

		C.bridge_emit_ddcci_data(table, C.struct_evdi_ddcci_data{
			address:       C.uint16_t(e.Address),
			flags:         C.uint16_t(e.Flags),
			buffer_length: C.uint32_t(len(e.Buffer)),
			buffer:        (*C.uint8_t)(buf),
		})
	default:
		return fmt.Errorf("libevdi: cannot emit %T", ev)
	}

	return nil
}

// EmitLog passes message through the native log formatter
func EmitLog(message string) {
	cmsg := C.CString(message)
	defer C.free(unsafe.Pointer(cmsg))
	C.bridge_emit_log(cmsg)
}

func emitLogIntString(format string, n int, s string) {
	cfmt := C.CString(format)
	defer C.free(unsafe.Pointer(cfmt))
	cs := C.CString(s)
	defer C.free(unsafe.Pointer(cs))
	C.bridge_emit_log_int_str(cfmt, C.int(n), cs)
}

func emitLogNullFormat() {
	C.bridge_emit_log_null()
}

// NullFormatMessage is what the formatter forwards for a NULL format
const NullFormatMessage = "(libevdi: null log format)"

// CheckFormatter drives the native log formatter with a formatted call and a
// NULL format and verifies the lines that reach Go. The active sink is
// swapped out for the duration of the check.
func CheckFormatter() error {
	var (
		mu    sync.Mutex
		lines []string
	)
	prev := SetLogger(func(message string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, message)
	})
	defer SetLogger(prev)

	emitLogIntString("%d items, %s", 3, "ok")
	emitLogNullFormat()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"3 items, ok", NullFormatMessage}
	if !slices.Equal(lines, want) {
		return fmt.Errorf("libevdi: log formatter produced %q, want %q", lines, want)
	}
	return nil
}

// cBytes returns a C copy of b, or nil for an empty slice. C.free(nil) is a no-op.
func cBytes(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return C.CBytes(b)
}
