//go:build cgo

package libevdi

/*
#cgo LDFLAGS: -levdi
#include "bridge.h"
*/
import "C"
import (
	"errors"
	"fmt"
	"unsafe"
)

// The functions below are installed directly into evdi_event_context. Their
// parameter lists must stay identical to the handler pointers in evdi_lib.h.

//export goDPMSHandler
func goDPMSHandler(mode C.int, userData unsafe.Pointer) {
	deliver(uintptr(userData), PowerStateEvent{Mode: DPMSMode(mode)})
}

//export goModeChangedHandler
func goModeChangedHandler(mode C.struct_evdi_mode, userData unsafe.Pointer) {
	deliver(uintptr(userData), ModeChangedEvent{
		Width:        uint32(mode.width),
		Height:       uint32(mode.height),
		BitsPerPixel: uint32(mode.bits_per_pixel),
		RefreshRate:  uint32(mode.refresh_rate),
		PixelFormat:  uint32(mode.pixel_format),
	})
}

//export goUpdateReadyHandler
func goUpdateReadyHandler(id C.int, userData unsafe.Pointer) {
	deliver(uintptr(userData), FrameReadyEvent{ControllerID: int32(id)})
}

//export goCRTCStateHandler
func goCRTCStateHandler(state C.int, userData unsafe.Pointer) {
	deliver(uintptr(userData), ControllerStateEvent{State: int32(state)})
}

//export goCursorSetHandler
func goCursorSetHandler(cursor C.struct_evdi_cursor_set, userData unsafe.Pointer) {
	deliverFunc(uintptr(userData), KindCursorSet, func() Event {
		return CursorSetEvent{
			HotX:        int32(cursor.hot_x),
			HotY:        int32(cursor.hot_y),
			Width:       uint32(cursor.width),
			Height:      uint32(cursor.height),
			Stride:      uint32(cursor.stride),
			PixelFormat: uint32(cursor.pixel_format),
			Enabled:     cursor.enabled != 0,
			Buffer:      copyNative(unsafe.Pointer(cursor.buffer), uint32(cursor.buffer_length)),
		}
	})
}

//export goCursorMoveHandler
func goCursorMoveHandler(move C.struct_evdi_cursor_move, userData unsafe.Pointer) {
	deliver(uintptr(userData), CursorMoveEvent{X: int32(move.x), Y: int32(move.y)})
}

//export goDDCCIDataHandler
func goDDCCIDataHandler(data C.struct_evdi_ddcci_data, userData unsafe.Pointer) {
	deliverFunc(uintptr(userData), KindChannelData, func() Event {
		return ChannelDataEvent{
			Address: uint16(data.address),
			Flags:   uint16(data.flags),
			Buffer:  copyNative(unsafe.Pointer(data.buffer), uint32(data.buffer_length)),
		}
	})
}

//export goLogHandler
func goLogHandler(userData unsafe.Pointer, message *C.char) {
	emitLog(C.GoString(message))
}

// maxNativeBuffer bounds a single cursor image or DDC/CI payload
const maxNativeBuffer = 64 << 20

// copyNative clones a caller-owned native buffer so nothing points into C
// memory after the callback returns. It panics on an oversized length, which
// the delivery barrier reports.
func copyNative(p unsafe.Pointer, n uint32) []byte {
	if p == nil || n == 0 {
		return nil
	}
	if n > maxNativeBuffer {
		panic(fmt.Sprintf("native buffer of %d bytes exceeds the %d byte limit", n, maxNativeBuffer))
	}

	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(p), n))
	return out
}

func allocNativeContext() (unsafe.Pointer, error) {
	ctx := C.bridge_new_event_context()
	if ctx == nil {
		return nil, errors.New("out of memory")
	}
	return unsafe.Pointer(ctx), nil
}

func freeNativeContext(p unsafe.Pointer) {
	C.bridge_free_event_context((*C.struct_evdi_event_context)(p))
}

func installNativeLogger() error {
	C.bridge_install_logger()
	return nil
}

func uninstallNativeLogger() {
	C.bridge_uninstall_logger()
}
