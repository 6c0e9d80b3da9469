package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bnema/openvd/internal/display"
	"github.com/bnema/openvd/libevdi"
)

// FormatMode renders a mode as WxH@R, or "no mode" before the first modeset
func FormatMode(m libevdi.ModeChangedEvent) string {
	if m.Width == 0 || m.Height == 0 {
		return "no mode"
	}
	return fmt.Sprintf("%dx%d@%d %dbpp", m.Width, m.Height, m.RefreshRate, m.BitsPerPixel)
}

// DescribeEvent returns a short human-readable summary of ev
func DescribeEvent(ev libevdi.Event) string {
	switch e := ev.(type) {
	case libevdi.PowerStateEvent:
		return e.Mode.String()
	case libevdi.ModeChangedEvent:
		return FormatMode(e)
	case libevdi.FrameReadyEvent:
		return fmt.Sprintf("crtc %d", e.ControllerID)
	case libevdi.ControllerStateEvent:
		return fmt.Sprintf("state %d", e.State)
	case libevdi.CursorSetEvent:
		if !e.Enabled {
			return "hidden"
		}
		return fmt.Sprintf("%dx%d hot %d,%d (%d bytes)", e.Width, e.Height, e.HotX, e.HotY, len(e.Buffer))
	case libevdi.CursorMoveEvent:
		return fmt.Sprintf("%d,%d", e.X, e.Y)
	case libevdi.ChannelDataEvent:
		return fmt.Sprintf("addr 0x%02x flags 0x%x (%d bytes)", e.Address, e.Flags, len(e.Buffer))
	default:
		return fmt.Sprintf("%v", ev)
	}
}

// FormatNotification renders one feed line
func FormatNotification(n display.Notification) string {
	ts := SubtleStyle.Render(n.Time.Format("15:04:05.000"))
	if n.Event == nil {
		return ts + " " + InfoStyle.Render(IconLog) + " " + LogLineStyle.Render(n.Message)
	}
	return fmt.Sprintf("%s %s %s %s",
		ts,
		BoldStyle.Render(n.Name),
		EventStyle.Render(n.Event.Kind().String()),
		TextStyle.Render(DescribeEvent(n.Event)))
}

// RenderStats renders a summary block per display
func RenderStats(stats []display.Stats) string {
	var b strings.Builder
	for i, s := range stats {
		b.WriteString(SubheaderStyle.Render(IconDisplay + " " + s.Name))
		b.WriteString("\n")
		b.WriteString(FormatKeyValue("power", s.Power.String()) + "\n")
		b.WriteString(FormatKeyValue("mode", FormatMode(s.Mode)) + "\n")
		b.WriteString(FormatKeyValue("frames", fmt.Sprintf("%d (%d rects)", s.Frames, s.Rects)) + "\n")
		b.WriteString(FormatKeyValue("cursor", fmt.Sprintf("%d,%d visible=%t", s.CursorX, s.CursorY, s.Cursor)) + "\n")
		b.WriteString(FormatKeyValue("events", fmt.Sprintf("%d", s.Events)))
		if !s.LastEvent.IsZero() {
			b.WriteString(SubtleStyle.Render(fmt.Sprintf(" (last %s)", s.LastEvent.Format(time.RFC3339))))
		}
		if i < len(stats)-1 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}
