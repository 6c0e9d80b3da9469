// Package edid builds EDID 1.4 base blocks for virtual monitors
package edid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// BlockSize is the length of an EDID base block
	BlockSize = 128

	// MaxModes is the number of detailed timing slots left after the
	// display name descriptor
	MaxModes = 3

	descriptorSize  = 18
	firstDescriptor = 54
	maxActive       = 4095 // 12-bit active pixel fields
	maxPixelClock   = math.MaxUint16
)

// Physical size advertised for every virtual monitor, a 24" 16:9 panel
const (
	widthMM  = 531
	heightMM = 299
)

// ProductName is written into the display name descriptor
const ProductName = "openvd"

var header = []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

// ErrNoModes is returned when Generate is called without modes
var ErrNoModes = errors.New("edid: at least one mode is required")

// Mode is one display timing
type Mode struct {
	Width   int
	Height  int
	Refresh int
}

func (m Mode) String() string {
	return fmt.Sprintf("%dx%d@%d", m.Width, m.Height, m.Refresh)
}

// Generate returns a 128-byte EDID block. The first mode is the preferred
// timing.
func Generate(modes []Mode) ([]byte, error) {
	if len(modes) == 0 {
		return nil, ErrNoModes
	}
	if len(modes) > MaxModes {
		return nil, fmt.Errorf("edid: %d modes given, at most %d fit", len(modes), MaxModes)
	}

	b := make([]byte, BlockSize)
	copy(b[0:8], header)

	// Manufacturer "LNX", big-endian 5-bit letters
	manufacturer := uint16(('L'-'@')<<10 | ('N'-'@')<<5 | ('X' - '@'))
	binary.BigEndian.PutUint16(b[8:10], manufacturer)
	binary.LittleEndian.PutUint16(b[10:12], 0x01EA)
	copy(b[12:16], "EVDI")

	b[16] = 5  // week
	b[17] = 35 // year - 1990
	b[18] = 1  // version
	b[19] = 4  // revision

	// Digital input, 6 bits per primary, DVI
	b[20] = 0x80 | 0x1<<4 | 0x01
	b[21] = byte((widthMM + 5) / 10)
	b[22] = byte((heightMM + 5) / 10)
	b[23] = 220 - 100 // gamma 2.2
	// RGB 4:4:4 + YCrCb 4:4:4, preferred timing is native
	b[24] = 0x0A

	copy(b[25:35], []byte{0x78, 0xEA, 0x3D, 0xA2, 0x57, 0x4A, 0x9C, 0x25, 0x12, 0x50})

	// No established timings, all standard timings unused
	for i := 38; i < 54; i++ {
		b[i] = 0x01
	}

	offset := firstDescriptor
	for _, m := range modes {
		dtd, err := detailedTiming(m)
		if err != nil {
			return nil, err
		}
		copy(b[offset:offset+descriptorSize], dtd)
		offset += descriptorSize
	}
	copy(b[offset:offset+descriptorSize], nameDescriptor(ProductName))
	offset += descriptorSize

	// Remaining slots become dummy descriptors (tag 0x10)
	for ; offset < 126; offset += descriptorSize {
		b[offset+3] = 0x10
	}

	b[126] = 0 // extension blocks
	b[127] = checksum(b[:127])

	return b, nil
}

// Timing is the blanking layout derived for a mode
type Timing struct {
	HActive, HBlank, HSyncOffset, HSyncWidth int
	VActive, VBlank, VSyncOffset, VSyncWidth int
	PixelClock                               int // in 10 kHz units
}

// CalculateTiming derives blanking intervals: horizontal blanking is 15% of
// the active width and vertical blanking 5% of the active height.
func CalculateTiming(m Mode) (Timing, error) {
	if m.Width <= 0 || m.Height <= 0 || m.Refresh <= 0 {
		return Timing{}, fmt.Errorf("edid: invalid mode %s", m)
	}
	if m.Width > maxActive || m.Height > maxActive {
		return Timing{}, fmt.Errorf("edid: mode %s exceeds %d pixels", m, maxActive)
	}

	t := Timing{HActive: m.Width, VActive: m.Height, VSyncOffset: 3, VSyncWidth: 5}

	t.HBlank = max(roundEven(float64(m.Width)*0.15), 8)
	t.HSyncOffset = roundEven(float64(t.HBlank) / 4)
	t.HSyncWidth = roundEven(float64(t.HBlank) / 8)
	if t.HBlank <= t.HSyncOffset+t.HSyncWidth {
		t.HBlank = t.HSyncOffset + t.HSyncWidth + 2
	}

	t.VBlank = max(roundEven(float64(m.Height)*0.05), t.VSyncOffset+t.VSyncWidth+2)

	hz := float64((t.HActive + t.HBlank) * (t.VActive + t.VBlank) * m.Refresh)
	t.PixelClock = int(math.Round(hz / 10000))
	if t.PixelClock > maxPixelClock {
		return Timing{}, fmt.Errorf("edid: mode %s needs a %.2f MHz pixel clock, above the 655.35 MHz limit", m, hz/1e6)
	}

	return t, nil
}

func detailedTiming(m Mode) ([]byte, error) {
	t, err := CalculateTiming(m)
	if err != nil {
		return nil, err
	}

	d := make([]byte, descriptorSize)
	binary.LittleEndian.PutUint16(d[0:2], uint16(t.PixelClock))

	d[2] = byte(t.HActive)
	d[3] = byte(t.HBlank)
	d[4] = byte((t.HActive>>8)&0x0F)<<4 | byte((t.HBlank>>8)&0x0F)

	d[5] = byte(t.VActive)
	d[6] = byte(t.VBlank)
	d[7] = byte((t.VActive>>8)&0x0F)<<4 | byte((t.VBlank>>8)&0x0F)

	d[8] = byte(t.HSyncOffset)
	d[9] = byte(t.HSyncWidth)
	d[10] = byte(t.VSyncOffset&0x0F)<<4 | byte(t.VSyncWidth&0x0F)
	d[11] = byte((t.HSyncOffset>>8)&0x03)<<6 | byte((t.HSyncWidth>>8)&0x03)<<4

	d[12] = byte(widthMM & 0xFF)
	d[13] = byte(heightMM & 0xFF)
	d[14] = byte((widthMM>>8)&0x0F)<<4 | byte((heightMM>>8)&0x0F)

	// Digital separate sync, positive polarity on both
	d[17] = 0x18 | 0x04 | 0x02

	return d, nil
}

func nameDescriptor(name string) []byte {
	d := make([]byte, descriptorSize)
	d[3] = 0xFC

	text := []byte(name)
	if len(text) > 13 {
		text = text[:13]
	}
	n := copy(d[5:], text)
	if n < 13 {
		d[5+n] = '\n'
		for i := 5 + n + 1; i < descriptorSize; i++ {
			d[i] = ' '
		}
	}
	return d
}

// Modes decodes the detailed timing descriptors of an EDID block
func Modes(b []byte) ([]Mode, error) {
	if len(b) < BlockSize {
		return nil, fmt.Errorf("edid: block is %d bytes, want %d", len(b), BlockSize)
	}
	for i, v := range header {
		if b[i] != v {
			return nil, errors.New("edid: bad header")
		}
	}
	if checksum(b[:127]) != b[127] {
		return nil, errors.New("edid: bad checksum")
	}

	var modes []Mode
	for offset := firstDescriptor; offset < 126; offset += descriptorSize {
		d := b[offset : offset+descriptorSize]
		clock := int(binary.LittleEndian.Uint16(d[0:2]))
		if clock == 0 {
			continue // display descriptor
		}

		hActive := int(d[2]) | int(d[4]>>4)<<8
		hBlank := int(d[3]) | int(d[4]&0x0F)<<8
		vActive := int(d[5]) | int(d[7]>>4)<<8
		vBlank := int(d[6]) | int(d[7]&0x0F)<<8

		refresh := float64(clock) * 10000 / float64((hActive+hBlank)*(vActive+vBlank))
		modes = append(modes, Mode{Width: hActive, Height: vActive, Refresh: int(math.Round(refresh))})
	}
	return modes, nil
}

func checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return -sum
}

// roundEven rounds x to the nearest integer, then down to an even one
func roundEven(x float64) int {
	n := int(math.Round(x))
	if n%2 != 0 {
		return n - 1
	}
	return n
}
