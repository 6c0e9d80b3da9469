package libevdi

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

var (
	// ErrUnknownContext is reported when libevdi hands back a user_data value
	// that does not belong to a live EventContext
	ErrUnknownContext = errors.New("libevdi: unknown event context")

	// ErrNilHandler is returned when creating an EventContext without a handler
	ErrNilHandler = errors.New("libevdi: nil handler")
)

// Handler receives events for one EventContext. Methods are called on the
// thread libevdi used to invoke the callback and may run concurrently with
// each other; implementations must not block.
type Handler interface {
	PowerState(ctx *EventContext, ev PowerStateEvent)
	ModeChanged(ctx *EventContext, ev ModeChangedEvent)
	FrameReady(ctx *EventContext, ev FrameReadyEvent)
	ControllerState(ctx *EventContext, ev ControllerStateEvent)
	CursorSet(ctx *EventContext, ev CursorSetEvent)
	CursorMove(ctx *EventContext, ev CursorMoveEvent)
	ChannelData(ctx *EventContext, ev ChannelDataEvent)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields ignore the event.
type HandlerFuncs struct {
	OnPowerState      func(ctx *EventContext, ev PowerStateEvent)
	OnModeChanged     func(ctx *EventContext, ev ModeChangedEvent)
	OnFrameReady      func(ctx *EventContext, ev FrameReadyEvent)
	OnControllerState func(ctx *EventContext, ev ControllerStateEvent)
	OnCursorSet       func(ctx *EventContext, ev CursorSetEvent)
	OnCursorMove      func(ctx *EventContext, ev CursorMoveEvent)
	OnChannelData     func(ctx *EventContext, ev ChannelDataEvent)
}

func (h HandlerFuncs) PowerState(ctx *EventContext, ev PowerStateEvent) {
	if h.OnPowerState != nil {
		h.OnPowerState(ctx, ev)
	}
}

func (h HandlerFuncs) ModeChanged(ctx *EventContext, ev ModeChangedEvent) {
	if h.OnModeChanged != nil {
		h.OnModeChanged(ctx, ev)
	}
}

func (h HandlerFuncs) FrameReady(ctx *EventContext, ev FrameReadyEvent) {
	if h.OnFrameReady != nil {
		h.OnFrameReady(ctx, ev)
	}
}

func (h HandlerFuncs) ControllerState(ctx *EventContext, ev ControllerStateEvent) {
	if h.OnControllerState != nil {
		h.OnControllerState(ctx, ev)
	}
}

func (h HandlerFuncs) CursorSet(ctx *EventContext, ev CursorSetEvent) {
	if h.OnCursorSet != nil {
		h.OnCursorSet(ctx, ev)
	}
}

func (h HandlerFuncs) CursorMove(ctx *EventContext, ev CursorMoveEvent) {
	if h.OnCursorMove != nil {
		h.OnCursorMove(ctx, ev)
	}
}

func (h HandlerFuncs) ChannelData(ctx *EventContext, ev ChannelDataEvent) {
	if h.OnChannelData != nil {
		h.OnChannelData(ctx, ev)
	}
}

// Dispatch routes ev to the matching method of the context's handler
func Dispatch(ctx *EventContext, ev Event) {
	h := ctx.handler
	switch e := ev.(type) {
	case PowerStateEvent:
		h.PowerState(ctx, e)
	case ModeChangedEvent:
		h.ModeChanged(ctx, e)
	case FrameReadyEvent:
		h.FrameReady(ctx, e)
	case ControllerStateEvent:
		h.ControllerState(ctx, e)
	case CursorSetEvent:
		h.CursorSet(ctx, e)
	case CursorMoveEvent:
		h.CursorMove(ctx, e)
	case ChannelDataEvent:
		h.ChannelData(ctx, e)
	default:
		panic(fmt.Sprintf("libevdi: unsupported event type %T", ev))
	}
}

// HandlerFault describes a panic raised by a Handler while a callback from
// libevdi was being delivered. It never propagates into native code.
type HandlerFault struct {
	Kind      EventKind
	ContextID uintptr
	Value     any
	Stack     []byte
}

func (f *HandlerFault) Error() string {
	return fmt.Sprintf("libevdi: %s handler for context %d panicked: %v", f.Kind, f.ContextID, f.Value)
}

// Unwrap exposes the panic value when it was an error
func (f *HandlerFault) Unwrap() error {
	if err, ok := f.Value.(error); ok {
		return err
	}
	return nil
}

// registry maps the user_data id handed to libevdi to its EventContext
var registry = struct {
	sync.RWMutex
	contexts map[uintptr]*EventContext
	nextID   uintptr
}{
	contexts: make(map[uintptr]*EventContext),
}

// registerContext stores ec under id. A zero id takes the next local id,
// which is only used for contexts without a native table.
func registerContext(ec *EventContext, id uintptr) uintptr {
	registry.Lock()
	defer registry.Unlock()

	if id == 0 {
		registry.nextID++
		id = registry.nextID
	}
	ec.id = id
	registry.contexts[id] = ec
	return id
}

func unregisterContext(id uintptr) bool {
	registry.Lock()
	defer registry.Unlock()

	if _, ok := registry.contexts[id]; !ok {
		return false
	}
	delete(registry.contexts, id)
	return true
}

func lookupContext(id uintptr) (*EventContext, bool) {
	registry.RLock()
	ec, ok := registry.contexts[id]
	registry.RUnlock()
	return ec, ok
}

// deliver is the fault barrier every trampoline goes through. It runs the
// handler inline and turns any panic into a diagnostic log line.
func deliver(id uintptr, ev Event) {
	deliverFunc(id, ev.Kind(), func() Event { return ev })
}

// deliverFunc is deliver for payloads that must be copied out of native
// memory first. build runs inside the barrier.
func deliverFunc(id uintptr, kind EventKind, build func() Event) {
	defer func() {
		if r := recover(); r != nil {
			reportFault(&HandlerFault{
				Kind:      kind,
				ContextID: id,
				Value:     r,
				Stack:     debug.Stack(),
			})
		}
	}()

	ec, ok := lookupContext(id)
	if !ok {
		emitDiagnostic(fmt.Sprintf("%v: dropped %s event for context %d", ErrUnknownContext, kind, id))
		return
	}

	Dispatch(ec, build())
}

func reportFault(f *HandlerFault) {
	emitDiagnostic(f.Error())
}
