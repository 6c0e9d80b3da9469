// Package libevdi provides Go bindings for the EVDI virtual display library.
//
// libevdi reports display lifecycle events through a table of C function
// pointers and logs through a printf-style callback. This package installs
// exported Go functions into that table, copies every payload into Go-owned
// values and routes it to a Handler registered for the originating event
// context.
//
// # Basic Usage
//
//	if err := libevdi.Register(); err != nil {
//		return err
//	}
//	defer libevdi.Shutdown()
//
//	ec, err := libevdi.NewEventContext(handler)
//	node, err := libevdi.Open("")
//	node.Connect(edid, 1920, 1080, 60)
//
//	for {
//		ready, err := node.WaitForEvents(ctx, 100*time.Millisecond)
//		if ready {
//			node.HandleEvents(ec)
//		}
//	}
//
// Handlers run synchronously on the thread that called into libevdi. They
// must return quickly and hand slow work off to their own goroutines.
package libevdi

import "fmt"

// EventKind identifies one of the seven libevdi callbacks
type EventKind uint8

const (
	KindPowerState EventKind = iota + 1
	KindModeChanged
	KindFrameReady
	KindControllerState
	KindCursorSet
	KindCursorMove
	KindChannelData
)

// Kinds lists every event kind in callback-table order
var Kinds = []EventKind{
	KindPowerState,
	KindModeChanged,
	KindFrameReady,
	KindControllerState,
	KindCursorSet,
	KindCursorMove,
	KindChannelData,
}

func (k EventKind) String() string {
	switch k {
	case KindPowerState:
		return "dpms"
	case KindModeChanged:
		return "mode_changed"
	case KindFrameReady:
		return "update_ready"
	case KindControllerState:
		return "crtc_state"
	case KindCursorSet:
		return "cursor_set"
	case KindCursorMove:
		return "cursor_move"
	case KindChannelData:
		return "ddcci_data"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Event is implemented by every payload type delivered by libevdi
type Event interface {
	Kind() EventKind
}

// DPMSMode is a Display Power Management Signaling state
type DPMSMode int32

// DRM_MODE_DPMS_* values
const (
	DPMSOn      DPMSMode = 0
	DPMSStandby DPMSMode = 1
	DPMSSuspend DPMSMode = 2
	DPMSOff     DPMSMode = 3
)

func (m DPMSMode) String() string {
	switch m {
	case DPMSOn:
		return "on"
	case DPMSStandby:
		return "standby"
	case DPMSSuspend:
		return "suspend"
	case DPMSOff:
		return "off"
	default:
		return fmt.Sprintf("dpms(%d)", int32(m))
	}
}

// PowerStateEvent is raised when the compositor changes the DPMS state
type PowerStateEvent struct {
	Mode DPMSMode
}

// ModeChangedEvent carries the mode the compositor selected for the display
type ModeChangedEvent struct {
	Width        uint32
	Height       uint32
	BitsPerPixel uint32
	RefreshRate  uint32
	PixelFormat  uint32
}

// FrameReadyEvent signals that a requested frame update can be grabbed
type FrameReadyEvent struct {
	ControllerID int32
}

// ControllerStateEvent reports the CRTC state
type ControllerStateEvent struct {
	State int32
}

// CursorSetEvent describes a new cursor image. Buffer is a copy owned by the
// receiver; the native buffer is only valid for the duration of the callback.
type CursorSetEvent struct {
	HotX        int32
	HotY        int32
	Width       uint32
	Height      uint32
	Stride      uint32
	PixelFormat uint32
	Enabled     bool
	Buffer      []byte
}

// CursorMoveEvent reports the cursor position
type CursorMoveEvent struct {
	X int32
	Y int32
}

// ChannelDataEvent carries DDC/CI channel-control data. Buffer is a copy.
type ChannelDataEvent struct {
	Address uint16
	Flags   uint16
	Buffer  []byte
}

func (PowerStateEvent) Kind() EventKind      { return KindPowerState }
func (ModeChangedEvent) Kind() EventKind     { return KindModeChanged }
func (FrameReadyEvent) Kind() EventKind      { return KindFrameReady }
func (ControllerStateEvent) Kind() EventKind { return KindControllerState }
func (CursorSetEvent) Kind() EventKind       { return KindCursorSet }
func (CursorMoveEvent) Kind() EventKind      { return KindCursorMove }
func (ChannelDataEvent) Kind() EventKind     { return KindChannelData }

// Rect is a damaged region reported by GrabPixels
type Rect struct {
	X1, Y1, X2, Y2 int
}

// Width returns the horizontal extent of the rect
func (r Rect) Width() int { return r.X2 - r.X1 }

// Height returns the vertical extent of the rect
func (r Rect) Height() int { return r.Y2 - r.Y1 }
