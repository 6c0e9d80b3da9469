//go:build !cgo

package libevdi

import (
	"context"
	"time"
	"unsafe"
)

// Node stub for when CGO is disabled
type Node struct{}

// Buffer stub for when CGO is disabled
type Buffer struct {
	ID     int
	Width  int
	Height int
	Stride int
	Pixels []byte
}

// Version is the libevdi library version
type Version struct {
	Major int
	Minor int
	Patch int
}

func (v Version) String() string {
	return "unavailable"
}

func LibraryVersion() Version { return Version{} }

func AddDevice() error { return ErrUnavailable }

func Open(parentDevice string) (*Node, error) { return nil, ErrUnavailable }

func (n *Node) Connect(edid []byte, widthLimit, heightLimit, fpsLimit uint) error {
	return ErrUnavailable
}

func (n *Node) Disconnect() error { return ErrUnavailable }

func (n *Node) EnableCursorEvents(enable bool) error { return ErrUnavailable }

func (n *Node) CreateBuffer(width, height, stride int) (*Buffer, error) {
	return nil, ErrUnavailable
}

func (n *Node) RemoveBuffer(buf *Buffer) error { return ErrUnavailable }

func (n *Node) RequestUpdate(buf *Buffer) (bool, error) { return false, ErrUnavailable }

func (n *Node) GrabPixels(buf *Buffer) ([]Rect, error) { return nil, ErrUnavailable }

func (n *Node) WaitForEvents(ctx context.Context, timeout time.Duration) (bool, error) {
	return false, ErrUnavailable
}

func (n *Node) HandleEvents(ec *EventContext) error { return ErrUnavailable }

func (n *Node) Close() error { return nil }

func (ec *EventContext) Emit(ev Event) error { return ErrUnavailable }

func EmitLog(message string) {}

const NullFormatMessage = "(libevdi: null log format)"

func CheckFormatter() error { return ErrUnavailable }

func XorgRunning() bool { return false }

func allocNativeContext() (unsafe.Pointer, error) { return nil, ErrUnavailable }

func freeNativeContext(p unsafe.Pointer) {}

func installNativeLogger() error { return ErrUnavailable }

func uninstallNativeLogger() {}
