package driver

import (
	"encoding/binary"

	"firestige.xyz/s2onet/internal/core"
)

// WINDIVERT_ADDRESS is 80 bytes: an int64 timestamp, then a uint32 bit
// field (Layer:8 Event:8 Sniffed:1 Outbound:1 ...), then reserved words.
const (
	addressSize        = 80
	addressFlagsOffset = 8
	addressOutboundBit = 1 << 17
)

func directionOf(layout AddressLayout, addr []byte) core.Direction {
	if layout != AddressWinDivert2 || len(addr) < addressFlagsOffset+4 {
		return core.DirectionUnknown
	}
	if binary.LittleEndian.Uint32(addr[addressFlagsOffset:])&addressOutboundBit != 0 {
		return core.DirectionOutbound
	}
	return core.DirectionInbound
}

// EncodeDirection writes d into a WinDivert 2 address block. Test drivers
// use it to fill the side channel the way the real driver does.
func EncodeDirection(addr []byte, d core.Direction) {
	if len(addr) < addressFlagsOffset+4 {
		return
	}
	flags := binary.LittleEndian.Uint32(addr[addressFlagsOffset:]) &^ addressOutboundBit
	if d == core.DirectionOutbound {
		flags |= addressOutboundBit
	}
	binary.LittleEndian.PutUint32(addr[addressFlagsOffset:], flags)
}
