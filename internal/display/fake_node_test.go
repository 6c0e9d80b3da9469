package display

import (
	"context"
	"sync"
	"time"

	"github.com/bnema/openvd/libevdi"
)

// fakeNode stands in for a libevdi node. Queued events are emitted through
// the native callback table on HandleEvents.
type fakeNode struct {
	mu sync.Mutex

	edid        []byte
	limits      [3]uint
	connected   bool
	cursor      bool
	closed      bool
	created     []*libevdi.Buffer
	removed     []*libevdi.Buffer
	requests    int
	grabs       int
	updateReady bool
	rects       []libevdi.Rect
	queue       []libevdi.Event
	connectErr  error
}

func (n *fakeNode) Connect(edid []byte, widthLimit, heightLimit, fpsLimit uint) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.connectErr != nil {
		return n.connectErr
	}
	n.edid = edid
	n.limits = [3]uint{widthLimit, heightLimit, fpsLimit}
	n.connected = true
	return nil
}

func (n *fakeNode) Disconnect() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected = false
	return nil
}

func (n *fakeNode) EnableCursorEvents(enable bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cursor = enable
	return nil
}

func (n *fakeNode) CreateBuffer(width, height, stride int) (*libevdi.Buffer, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	buf := &libevdi.Buffer{
		ID:     len(n.created),
		Width:  width,
		Height: height,
		Stride: stride,
		Pixels: make([]byte, height*stride),
	}
	n.created = append(n.created, buf)
	return buf, nil
}

func (n *fakeNode) RemoveBuffer(buf *libevdi.Buffer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.removed = append(n.removed, buf)
	return nil
}

func (n *fakeNode) RequestUpdate(buf *libevdi.Buffer) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests++
	return n.updateReady, nil
}

func (n *fakeNode) GrabPixels(buf *libevdi.Buffer) ([]libevdi.Rect, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.grabs++
	return n.rects, nil
}

func (n *fakeNode) WaitForEvents(ctx context.Context, timeout time.Duration) (bool, error) {
	n.mu.Lock()
	pending := len(n.queue) > 0
	n.mu.Unlock()
	if pending {
		return true, nil
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(time.Millisecond):
		return false, nil
	}
}

func (n *fakeNode) HandleEvents(ec *libevdi.EventContext) error {
	n.mu.Lock()
	queue := n.queue
	n.queue = nil
	n.mu.Unlock()

	for _, ev := range queue {
		if err := ec.Emit(ev); err != nil {
			return err
		}
	}
	return nil
}

func (n *fakeNode) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return libevdi.ErrClosed
	}
	n.closed = true
	return nil
}

func (n *fakeNode) push(events ...libevdi.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queue = append(n.queue, events...)
}

func (n *fakeNode) counts() (requests, grabs int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.requests, n.grabs
}

func (n *fakeNode) buffers() (created, removed int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.created), len(n.removed)
}
