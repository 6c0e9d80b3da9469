package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bnema/openvd/internal/display"
	"github.com/bnema/openvd/internal/eventlog"
	"github.com/bnema/openvd/libevdi"
	"google.golang.org/protobuf/encoding/protowire"
)

// MessageType identifies a control message
type MessageType uint8

const (
	MessageStatus MessageType = iota + 1
	MessageStop
	MessageStatusResponse
	MessageAck
	MessageError
)

func (t MessageType) String() string {
	switch t {
	case MessageStatus:
		return "status"
	case MessageStop:
		return "stop"
	case MessageStatusResponse:
		return "status_response"
	case MessageAck:
		return "ack"
	case MessageError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// maxMessageSize bounds what either side will read
const maxMessageSize = 1 << 20

// Message is one request or response on the control socket
type Message struct {
	Type     MessageType
	Displays []display.Stats
	Error    string
}

const (
	fieldType    protowire.Number = 1
	fieldDisplay protowire.Number = 2
	fieldError   protowire.Number = 3
)

// display submessage fields
const (
	statIndex protowire.Number = iota + 1
	statName
	statWidth
	statHeight
	statBPP
	statRefresh
	statFormat
	statPower
	statCRTC
	statCursorX
	statCursorY
	statCursor
	statFrames
	statRects
	statEvents
	statDropped
	statLastEvent
)

// Marshal encodes m without framing
func Marshal(m Message) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Type))

	for _, s := range m.Displays {
		b = protowire.AppendTag(b, fieldDisplay, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalStats(s))
	}

	if m.Error != "" {
		b = protowire.AppendTag(b, fieldError, protowire.BytesType)
		b = protowire.AppendString(b, m.Error)
	}
	return b
}

// Unmarshal decodes a message produced by Marshal
func Unmarshal(b []byte) (Message, error) {
	var m Message
	err := eventlog.Walk(b, func(num protowire.Number, v uint64, data []byte) error {
		switch num {
		case fieldType:
			m.Type = MessageType(v)
		case fieldDisplay:
			s, err := unmarshalStats(data)
			if err != nil {
				return err
			}
			m.Displays = append(m.Displays, s)
		case fieldError:
			m.Error = string(data)
		}
		return nil
	})
	if err != nil {
		return Message{}, fmt.Errorf("ipc: %w", err)
	}
	if m.Type == 0 {
		return Message{}, errors.New("ipc: message has no type")
	}
	return m, nil
}

func marshalStats(s display.Stats) []byte {
	var b []byte
	varint := func(num protowire.Number, v uint64) {
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, v)
	}
	signed := func(num protowire.Number, v int64) {
		varint(num, protowire.EncodeZigZag(v))
	}

	signed(statIndex, int64(s.Index))
	b = protowire.AppendTag(b, statName, protowire.BytesType)
	b = protowire.AppendString(b, s.Name)
	varint(statWidth, uint64(s.Mode.Width))
	varint(statHeight, uint64(s.Mode.Height))
	varint(statBPP, uint64(s.Mode.BitsPerPixel))
	varint(statRefresh, uint64(s.Mode.RefreshRate))
	varint(statFormat, uint64(s.Mode.PixelFormat))
	signed(statPower, int64(s.Power))
	signed(statCRTC, int64(s.CRTCState))
	signed(statCursorX, int64(s.CursorX))
	signed(statCursorY, int64(s.CursorY))
	varint(statCursor, protowire.EncodeBool(s.Cursor))
	varint(statFrames, s.Frames)
	varint(statRects, s.Rects)
	varint(statEvents, s.Events)
	varint(statDropped, s.Dropped)
	if !s.LastEvent.IsZero() {
		signed(statLastEvent, s.LastEvent.UnixNano())
	}
	return b
}

func unmarshalStats(b []byte) (display.Stats, error) {
	var s display.Stats
	err := eventlog.Walk(b, func(num protowire.Number, v uint64, data []byte) error {
		switch num {
		case statIndex:
			s.Index = int(protowire.DecodeZigZag(v))
		case statName:
			s.Name = string(data)
		case statWidth:
			s.Mode.Width = uint32(v)
		case statHeight:
			s.Mode.Height = uint32(v)
		case statBPP:
			s.Mode.BitsPerPixel = uint32(v)
		case statRefresh:
			s.Mode.RefreshRate = uint32(v)
		case statFormat:
			s.Mode.PixelFormat = uint32(v)
		case statPower:
			s.Power = libevdi.DPMSMode(protowire.DecodeZigZag(v))
		case statCRTC:
			s.CRTCState = int32(protowire.DecodeZigZag(v))
		case statCursorX:
			s.CursorX = int32(protowire.DecodeZigZag(v))
		case statCursorY:
			s.CursorY = int32(protowire.DecodeZigZag(v))
		case statCursor:
			s.Cursor = protowire.DecodeBool(v)
		case statFrames:
			s.Frames = v
		case statRects:
			s.Rects = v
		case statEvents:
			s.Events = v
		case statDropped:
			s.Dropped = v
		case statLastEvent:
			s.LastEvent = time.Unix(0, protowire.DecodeZigZag(v))
		}
		return nil
	})
	return s, err
}

// readMessage reads one length-prefixed message
func readMessage(r io.Reader) (Message, error) {
	// Read message length (4 bytes, big endian)
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return Message{}, fmt.Errorf("failed to read message length: %w", err)
	}
	if length > maxMessageSize {
		return Message{}, fmt.Errorf("message of %d bytes exceeds limit", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return Message{}, fmt.Errorf("failed to read message data: %w", err)
	}

	return Unmarshal(data)
}

// writeMessage writes one length-prefixed message
func writeMessage(w io.Writer, m Message) error {
	data := Marshal(m)

	length := uint32(len(data)) //nolint:gosec // bounded by maxMessageSize in practice
	if err := binary.Write(w, binary.BigEndian, length); err != nil {
		return fmt.Errorf("failed to write message length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write message data: %w", err)
	}
	return nil
}
