package hid

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ReportIDButtonEvent marks a button report from switch firmware
const ReportIDButtonEvent byte = 0x01

// Event types for button events
const (
	EventTypePress   byte = 0x01
	EventTypeRelease byte = 0x02
)

// Event is a button state change from the switch
type Event struct {
	Type       EventType
	ButtonMask uint16
	Timestamp  uint32
}

type EventType byte

const (
	Press   EventType = EventType(EventTypePress)
	Release EventType = EventType(EventTypeRelease)
)

func (e EventType) String() string {
	switch e {
	case Press:
		return "press"
	case Release:
		return "release"
	default:
		return fmt.Sprintf("unknown(%d)", e)
	}
}

// ReportParser decodes one raw input report
type ReportParser func(data []byte) (*Event, error)

// ParseEvent parses a firmware report:
//
//	Byte 0: Report ID (0x01)
//	Byte 1: Event type (0x01=press, 0x02=release)
//	Byte 2-3: Button bitmask, little-endian
//	Byte 4-7: Timestamp (ms since boot, little-endian u32)
func ParseEvent(data []byte) (*Event, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("event data too short: %d bytes", len(data))
	}
	if data[0] != ReportIDButtonEvent {
		return nil, fmt.Errorf("unexpected report ID: 0x%02X", data[0])
	}

	eventType := data[1]
	if eventType != EventTypePress && eventType != EventTypeRelease {
		return nil, fmt.Errorf("unknown event type: 0x%02X", eventType)
	}

	return &Event{
		Type:       EventType(eventType),
		ButtonMask: binary.LittleEndian.Uint16(data[2:4]),
		Timestamp:  binary.LittleEndian.Uint32(data[4:8]),
	}, nil
}

// MaskParser returns a parser for generic switch interfaces that report
// the current button bitmask at byte offset. Every report is a Press with
// the buttons currently held; an empty mask is a Release.
func MaskParser(offset int) ReportParser {
	return func(data []byte) (*Event, error) {
		if offset < 0 || len(data) <= offset {
			return nil, fmt.Errorf("report too short for mask at offset %d: %d bytes", offset, len(data))
		}
		mask := uint16(data[offset])
		if len(data) > offset+1 {
			mask |= uint16(data[offset+1]) << 8
		}
		if mask == 0 {
			return &Event{Type: Release}, nil
		}
		return &Event{Type: Press, ButtonMask: mask}, nil
	}
}

// ParserFor returns the parser for a configured report format
func ParserFor(format string, offset int) (ReportParser, error) {
	switch strings.ToLower(format) {
	case "", "event":
		return ParseEvent, nil
	case "mask":
		return MaskParser(offset), nil
	default:
		return nil, fmt.Errorf("unknown switch report format %q", format)
	}
}

// PressedButtons returns the indices of buttons held in this event
func (e *Event) PressedButtons() []int {
	var buttons []int
	for i := 0; i < 16; i++ {
		if e.ButtonMask&(1<<i) != 0 {
			buttons = append(buttons, i)
		}
	}
	return buttons
}

// Pressed reports whether button is held
func (e *Event) Pressed(button int) bool {
	if button < 0 || button > 15 {
		return false
	}
	return e.Type == Press && e.ButtonMask&(1<<button) != 0
}
