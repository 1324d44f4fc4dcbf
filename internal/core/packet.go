// Package core defines core data structures with zero external dependencies.
package core

import "time"

// Direction tells which way a frame crossed the adapter.
type Direction uint8

const (
	DirectionUnknown Direction = iota
	DirectionInbound
	DirectionOutbound
)

func (d Direction) String() string {
	switch d {
	case DirectionInbound:
		return "inbound"
	case DirectionOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// LinkType describes what the first byte of Frame.Data is.
type LinkType uint8

const (
	// LinkEthernet frames start with an Ethernet II header.
	LinkEthernet LinkType = iota
	// LinkRawIP frames start directly at the IP header (WinDivert network layer).
	LinkRawIP
)

func (l LinkType) String() string {
	if l == LinkRawIP {
		return "raw_ip"
	}
	return "ethernet"
}

// Frame is a single captured link-layer unit. It is immutable once stored:
// Data must not be modified after the frame has been pushed.
type Frame struct {
	Seq        uint64    // Assigned by the packet store on insert, 0 until stored
	Data       []byte    // Owned copy of the received bytes
	CapturedAt time.Time // Carries a monotonic reading
	Direction  Direction
	LinkType   LinkType
}

// Len returns the captured length.
func (f Frame) Len() int {
	return len(f.Data)
}
