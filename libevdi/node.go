//go:build cgo

package libevdi

/*
#include "bridge.h"
*/
import "C"
import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// maxRects bounds the damage rects evdi_grab_pixels may report per frame
const maxRects = 16

// pollSlice caps a single poll(2) so that context cancellation is noticed
const pollSlice = 100 * time.Millisecond

// Node wraps one evdi_handle
type Node struct {
	mu           sync.Mutex
	handle       C.evdi_handle
	buffers      map[int]*Buffer
	nextBufferID int
	closed       bool
}

// Buffer is a C-allocated framebuffer registered with a Node. Pixels aliases
// C memory and is invalid after RemoveBuffer or Close.
type Buffer struct {
	ID     int
	Width  int
	Height int
	Stride int
	Pixels []byte

	data  unsafe.Pointer
	rects *C.struct_evdi_rect
}

// Version is the libevdi library version
type Version struct {
	Major int
	Minor int
	Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// LibraryVersion reports the version of the linked libevdi
func LibraryVersion() Version {
	var v C.struct_evdi_lib_version
	C.evdi_get_lib_version(&v)
	return Version{
		Major: int(v.version_major),
		Minor: int(v.version_minor),
		Patch: int(v.version_patchlevel),
	}
}

// XorgRunning reports whether libevdi detects a running X server
func XorgRunning() bool {
	return bool(C.Xorg_running())
}

// AddDevice asks the evdi kernel module to create a new card
func AddDevice() error {
	if C.evdi_add_device() <= 0 {
		return errors.New("libevdi: failed to add evdi device (is the module loaded and are you root?)")
	}
	return nil
}

// Open opens an evdi node, optionally attached to the given sysfs parent
// device (for example "usb:2-1"). An empty parent opens an unattached node.
func Open(parentDevice string) (*Node, error) {
	var cparent *C.char
	if parentDevice != "" {
		cparent = C.CString(parentDevice)
		defer C.free(unsafe.Pointer(cparent))
	}

	handle := C.evdi_open_attached_to_fixed(cparent, C.size_t(len(parentDevice)))
	if handle == nil {
		return nil, errors.New("libevdi: failed to open evdi node")
	}

	return &Node{
		handle:  handle,
		buffers: make(map[int]*Buffer),
	}, nil
}

func (n *Node) live() (C.evdi_handle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrClosed
	}
	return n.handle, nil
}

// Connect plugs a virtual monitor with the given EDID into the node. The
// limits bound the modes the kernel will accept.
func (n *Node) Connect(edid []byte, widthLimit, heightLimit, fpsLimit uint) error {
	handle, err := n.live()
	if err != nil {
		return err
	}
	if len(edid) == 0 {
		return errors.New("libevdi: empty EDID")
	}

	cedid := C.CBytes(edid)
	defer C.free(cedid)

	pixelAreaLimit := widthLimit * heightLimit
	C.evdi_connect2(handle, (*C.uchar)(cedid), C.uint(len(edid)),
		C.uint32_t(pixelAreaLimit), C.uint32_t(pixelAreaLimit*fpsLimit))
	return nil
}

// Disconnect unplugs the virtual monitor
func (n *Node) Disconnect() error {
	handle, err := n.live()
	if err != nil {
		return err
	}
	C.evdi_disconnect(handle)
	return nil
}

// EnableCursorEvents switches cursor reporting between events and composited pixels
func (n *Node) EnableCursorEvents(enable bool) error {
	handle, err := n.live()
	if err != nil {
		return err
	}
	C.evdi_enable_cursor_events(handle, C.bool(enable))
	return nil
}

// CreateBuffer allocates and registers a framebuffer. stride is in bytes per row.
func (n *Node) CreateBuffer(width, height, stride int) (*Buffer, error) {
	if width <= 0 || height <= 0 || stride < width {
		return nil, fmt.Errorf("libevdi: invalid buffer geometry %dx%d stride %d", width, height, stride)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrClosed
	}

	size := stride * height
	data := C.malloc(C.size_t(size))
	if data == nil {
		return nil, errors.New("libevdi: out of memory allocating framebuffer")
	}
	rects := (*C.struct_evdi_rect)(C.calloc(maxRects, C.size_t(unsafe.Sizeof(C.struct_evdi_rect{}))))
	if rects == nil {
		C.free(data)
		return nil, errors.New("libevdi: out of memory allocating rects")
	}

	buf := &Buffer{
		ID:     n.nextBufferID,
		Width:  width,
		Height: height,
		Stride: stride,
		Pixels: unsafe.Slice((*byte)(data), size),
		data:   data,
		rects:  rects,
	}
	n.nextBufferID++

	C.evdi_register_buffer(n.handle, C.struct_evdi_buffer{
		id:         C.int(buf.ID),
		buffer:     data,
		width:      C.int(width),
		height:     C.int(height),
		stride:     C.int(stride),
		rects:      rects,
		rect_count: 0,
	})
	n.buffers[buf.ID] = buf

	return buf, nil
}

// RemoveBuffer unregisters and frees a framebuffer
func (n *Node) RemoveBuffer(buf *Buffer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	if _, ok := n.buffers[buf.ID]; !ok {
		return fmt.Errorf("libevdi: buffer %d not registered", buf.ID)
	}

	n.removeBufferLocked(buf)
	return nil
}

func (n *Node) removeBufferLocked(buf *Buffer) {
	C.evdi_unregister_buffer(n.handle, C.int(buf.ID))
	delete(n.buffers, buf.ID)

	buf.Pixels = nil
	C.free(buf.data)
	C.free(unsafe.Pointer(buf.rects))
	buf.data = nil
	buf.rects = nil
}

// RequestUpdate asks for the next frame into buf. It returns true when the
// update is available immediately; otherwise a FrameReadyEvent follows.
func (n *Node) RequestUpdate(buf *Buffer) (bool, error) {
	handle, err := n.live()
	if err != nil {
		return false, err
	}
	return bool(C.evdi_request_update(handle, C.int(buf.ID))), nil
}

// GrabPixels copies the pending frame into the last requested buffer and
// returns the damaged regions
func (n *Node) GrabPixels(buf *Buffer) ([]Rect, error) {
	handle, err := n.live()
	if err != nil {
		return nil, err
	}
	if buf.rects == nil {
		return nil, fmt.Errorf("libevdi: buffer %d already removed", buf.ID)
	}

	var count C.int
	C.evdi_grab_pixels(handle, buf.rects, &count)

	num := int(count)
	if num <= 0 {
		return nil, nil
	}
	if num > maxRects {
		num = maxRects
	}

	crects := unsafe.Slice(buf.rects, num)
	rects := make([]Rect, num)
	for i, r := range crects {
		rects[i] = Rect{X1: int(r.x1), Y1: int(r.y1), X2: int(r.x2), Y2: int(r.y2)}
	}
	return rects, nil
}

// WaitForEvents blocks until the node has events to handle, timeout elapses
// or ctx is done. It returns true when HandleEvents should be called.
func (n *Node) WaitForEvents(ctx context.Context, timeout time.Duration) (bool, error) {
	handle, err := n.live()
	if err != nil {
		return false, err
	}
	fd := int32(C.evdi_get_event_ready(handle))

	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		if remaining > pollSlice {
			remaining = pollSlice
		}

		fds := []unix.PollFd{{Fd: fd, Events: unix.POLLIN}}
		ready, err := unix.Poll(fds, int(remaining.Milliseconds()))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return false, fmt.Errorf("poll evdi event fd: %w", err)
		}
		if ready > 0 && fds[0].Revents&unix.POLLIN != 0 {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
	}
}

// HandleEvents dispatches all pending events through ec's callback table.
// Handlers run on the calling goroutine's thread before this returns.
func (n *Node) HandleEvents(ec *EventContext) error {
	handle, err := n.live()
	if err != nil {
		return err
	}
	table, err := ec.nativeTable()
	if err != nil {
		return err
	}

	C.evdi_handle_events(handle, (*C.struct_evdi_event_context)(table))
	return nil
}

// Close releases all buffers and the handle
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}

	for _, buf := range n.buffers {
		n.removeBufferLocked(buf)
	}
	C.evdi_close(n.handle)
	n.closed = true
	n.handle = nil
	return nil
}
