package libevdi

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// ErrClosed is returned when using an EventContext or Node after Close
var ErrClosed = errors.New("libevdi: closed")

// EventContext is the Go side of a native evdi_event_context. The native
// table points user_data at itself and the registry is keyed by that
// address; the Go pointer never crosses into C.
type EventContext struct {
	id      uintptr
	handler Handler

	mu     sync.Mutex
	native unsafe.Pointer // *C.struct_evdi_event_context, C-allocated
	closed bool
}

// NewEventContext allocates a native event context with every trampoline
// installed and binds it to h. Register must have been called first.
func NewEventContext(h Handler) (*EventContext, error) {
	if !Registered() {
		return nil, ErrNotRegistered
	}
	if h == nil {
		return nil, ErrNilHandler
	}

	native, err := allocNativeContext()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate event context: %w", err)
	}

	// the table's own address is its user_data, so the id libevdi hands
	// back is always a real C pointer
	ec := &EventContext{handler: h, native: native}
	registerContext(ec, uintptr(native))
	return ec, nil
}

func newContext(h Handler) (*EventContext, error) {
	if h == nil {
		return nil, ErrNilHandler
	}
	ec := &EventContext{handler: h}
	registerContext(ec, 0)
	return ec, nil
}

// ID returns the opaque value libevdi passes back as user_data
func (ec *EventContext) ID() uintptr {
	return ec.id
}

// Handler returns the handler bound to this context
func (ec *EventContext) Handler() Handler {
	return ec.handler
}

// Close unregisters the context and frees its native table. It must not be
// called while HandleEvents is running with this context.
func (ec *EventContext) Close() error {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	if ec.closed {
		return ErrClosed
	}
	ec.closed = true

	unregisterContext(ec.id)
	if ec.native != nil {
		freeNativeContext(ec.native)
		ec.native = nil
	}
	return nil
}

func (ec *EventContext) nativeTable() (unsafe.Pointer, error) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	if ec.closed || ec.native == nil {
		return nil, ErrClosed
	}
	return ec.native, nil
}
