// Package eventlog records bridged libevdi events as length-delimited
// protobuf messages so that a session can be replayed later
package eventlog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bnema/openvd/libevdi"
	"google.golang.org/protobuf/encoding/protowire"
)

// maxRecordSize bounds a single record; cursor images are the largest payload
const maxRecordSize = 4 << 20

// Record field numbers
const (
	fieldKind        protowire.Number = 1
	fieldDisplay     protowire.Number = 2
	fieldTime        protowire.Number = 3
	fieldLog         protowire.Number = 4
	fieldValue       protowire.Number = 5
	fieldMode        protowire.Number = 6
	fieldCursorSet   protowire.Number = 7
	fieldCursorMove  protowire.Number = 8
	fieldChannelData protowire.Number = 9
)

// ErrRecordTooLarge is returned for records above the size limit
var ErrRecordTooLarge = errors.New("eventlog: record too large")

// Record is one recorded event or native log line. Exactly one of Event and
// Log is set.
type Record struct {
	Time    time.Time
	Display int
	Event   libevdi.Event
	Log     string
}

// Writer appends records to an io.Writer. It is safe for concurrent use, so
// handlers running on different native threads may share one Writer.
type Writer struct {
	mu    sync.Mutex
	w     io.Writer
	count int
}

// NewWriter creates a Writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes and appends rec
func (w *Writer) Write(rec Record) error {
	msg, err := Marshal(rec)
	if err != nil {
		return err
	}
	frame := protowire.AppendBytes(nil, msg)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.w.Write(frame); err != nil {
		return fmt.Errorf("eventlog: write: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of records written
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Reader reads records written by Writer
type Reader struct {
	r *bufio.Reader
}

// NewReader creates a Reader
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next record, or io.EOF after the last one
func (r *Reader) Next() (Record, error) {
	size, err := binary.ReadUvarint(r.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("eventlog: read length: %w", err)
	}
	if size > maxRecordSize {
		return Record{}, ErrRecordTooLarge
	}

	msg := make([]byte, size)
	if _, err := io.ReadFull(r.r, msg); err != nil {
		return Record{}, fmt.Errorf("eventlog: truncated record: %w", err)
	}
	return Unmarshal(msg)
}

// Marshal encodes a single record without the length prefix
func Marshal(rec Record) ([]byte, error) {
	if (rec.Event == nil) == (rec.Log == "") {
		return nil, errors.New("eventlog: record needs exactly one of event or log")
	}

	var b []byte
	if rec.Event != nil {
		b = appendVarint(b, fieldKind, uint64(rec.Event.Kind()))
	}
	b = appendSigned(b, fieldDisplay, int64(rec.Display))
	b = appendVarint(b, fieldTime, uint64(rec.Time.UnixNano()))

	switch ev := rec.Event.(type) {
	case nil:
		b = protowire.AppendTag(b, fieldLog, protowire.BytesType)
		b = protowire.AppendString(b, rec.Log)
	case libevdi.PowerStateEvent:
		b = appendSigned(b, fieldValue, int64(ev.Mode))
	case libevdi.FrameReadyEvent:
		b = appendSigned(b, fieldValue, int64(ev.ControllerID))
	case libevdi.ControllerStateEvent:
		b = appendSigned(b, fieldValue, int64(ev.State))
	case libevdi.ModeChangedEvent:
		var m []byte
		m = appendVarint(m, 1, uint64(ev.Width))
		m = appendVarint(m, 2, uint64(ev.Height))
		m = appendVarint(m, 3, uint64(ev.BitsPerPixel))
		m = appendVarint(m, 4, uint64(ev.RefreshRate))
		m = appendVarint(m, 5, uint64(ev.PixelFormat))
		b = appendMessage(b, fieldMode, m)
	case libevdi.CursorSetEvent:
		var m []byte
		m = appendSigned(m, 1, int64(ev.HotX))
		m = appendSigned(m, 2, int64(ev.HotY))
		m = appendVarint(m, 3, uint64(ev.Width))
		m = appendVarint(m, 4, uint64(ev.Height))
		m = appendVarint(m, 5, uint64(ev.Stride))
		m = appendVarint(m, 6, uint64(ev.PixelFormat))
		m = appendVarint(m, 7, protowire.EncodeBool(ev.Enabled))
		m = appendMessage(m, 8, ev.Buffer)
		b = appendMessage(b, fieldCursorSet, m)
	case libevdi.CursorMoveEvent:
		var m []byte
		m = appendSigned(m, 1, int64(ev.X))
		m = appendSigned(m, 2, int64(ev.Y))
		b = appendMessage(b, fieldCursorMove, m)
	case libevdi.ChannelDataEvent:
		var m []byte
		m = appendVarint(m, 1, uint64(ev.Address))
		m = appendVarint(m, 2, uint64(ev.Flags))
		m = appendMessage(m, 3, ev.Buffer)
		b = appendMessage(b, fieldChannelData, m)
	default:
		return nil, fmt.Errorf("eventlog: unsupported event %T", rec.Event)
	}

	return b, nil
}

// Unmarshal decodes a single record
func Unmarshal(b []byte) (Record, error) {
	var (
		rec     Record
		kind    libevdi.EventKind
		value   int64
		payload []byte
		hasLog  bool
	)

	err := Walk(b, func(num protowire.Number, v uint64, data []byte) error {
		switch num {
		case fieldKind:
			kind = libevdi.EventKind(v)
		case fieldDisplay:
			rec.Display = int(protowire.DecodeZigZag(v))
		case fieldTime:
			rec.Time = time.Unix(0, int64(v))
		case fieldLog:
			rec.Log = string(data)
			hasLog = true
		case fieldValue:
			value = protowire.DecodeZigZag(v)
		case fieldMode, fieldCursorSet, fieldCursorMove, fieldChannelData:
			payload = data
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	if kind == 0 {
		if !hasLog {
			return Record{}, errors.New("eventlog: record has neither kind nor log")
		}
		return rec, nil
	}

	rec.Event, err = decodeEvent(kind, value, payload)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func decodeEvent(kind libevdi.EventKind, value int64, payload []byte) (libevdi.Event, error) {
	switch kind {
	case libevdi.KindPowerState:
		return libevdi.PowerStateEvent{Mode: libevdi.DPMSMode(value)}, nil
	case libevdi.KindFrameReady:
		return libevdi.FrameReadyEvent{ControllerID: int32(value)}, nil
	case libevdi.KindControllerState:
		return libevdi.ControllerStateEvent{State: int32(value)}, nil
	case libevdi.KindModeChanged:
		var ev libevdi.ModeChangedEvent
		err := Walk(payload, func(num protowire.Number, v uint64, _ []byte) error {
			switch num {
			case 1:
				ev.Width = uint32(v)
			case 2:
				ev.Height = uint32(v)
			case 3:
				ev.BitsPerPixel = uint32(v)
			case 4:
				ev.RefreshRate = uint32(v)
			case 5:
				ev.PixelFormat = uint32(v)
			}
			return nil
		})
		return ev, err
	case libevdi.KindCursorSet:
		var ev libevdi.CursorSetEvent
		err := Walk(payload, func(num protowire.Number, v uint64, data []byte) error {
			switch num {
			case 1:
				ev.HotX = int32(protowire.DecodeZigZag(v))
			case 2:
				ev.HotY = int32(protowire.DecodeZigZag(v))
			case 3:
				ev.Width = uint32(v)
			case 4:
				ev.Height = uint32(v)
			case 5:
				ev.Stride = uint32(v)
			case 6:
				ev.PixelFormat = uint32(v)
			case 7:
				ev.Enabled = protowire.DecodeBool(v)
			case 8:
				ev.Buffer = cloneBytes(data)
			}
			return nil
		})
		return ev, err
	case libevdi.KindCursorMove:
		var ev libevdi.CursorMoveEvent
		err := Walk(payload, func(num protowire.Number, v uint64, _ []byte) error {
			switch num {
			case 1:
				ev.X = int32(protowire.DecodeZigZag(v))
			case 2:
				ev.Y = int32(protowire.DecodeZigZag(v))
			}
			return nil
		})
		return ev, err
	case libevdi.KindChannelData:
		var ev libevdi.ChannelDataEvent
		err := Walk(payload, func(num protowire.Number, v uint64, data []byte) error {
			switch num {
			case 1:
				ev.Address = uint16(v)
			case 2:
				ev.Flags = uint16(v)
			case 3:
				ev.Buffer = cloneBytes(data)
			}
			return nil
		})
		return ev, err
	default:
		return nil, fmt.Errorf("eventlog: unknown event kind %d", kind)
	}
}

// Walk visits every varint and bytes field of a protobuf-wire message.
// Other wire types are skipped.
func Walk(b []byte, visit func(num protowire.Number, v uint64, data []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("eventlog: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("eventlog: field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			if err := visit(num, v, nil); err != nil {
				return err
			}
		case protowire.BytesType:
			data, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("eventlog: field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			if err := visit(num, 0, data); err != nil {
				return err
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("eventlog: field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSigned(b []byte, num protowire.Number, v int64) []byte {
	return appendVarint(b, num, protowire.EncodeZigZag(v))
}

func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
