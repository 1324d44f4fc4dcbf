// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"

	"github.com/google/gopacket/layers"

	"firestige.xyz/s2onet/internal/core"
)

const (
	// Ethernet constants
	ethernetHeaderLen = 14
	vlanHeaderLen     = 4

	// EtherType values
	etherTypeIPv4 = uint16(layers.EthernetTypeIPv4)
	etherTypeIPv6 = uint16(layers.EthernetTypeIPv6)
	etherTypeVLAN = uint16(layers.EthernetTypeDot1Q)
	etherTypeQinQ = uint16(layers.EthernetTypeQinQ)
)

// decodeEthernet reads the Ethernet II header and peels at most one 802.1Q
// tag. An outer 802.1ad (QinQ) tag is not peeled and reaches the caller as
// its EtherType. Returns the effective EtherType and the payload that follows the header.
func decodeEthernet(data []byte) (uint16, []byte, core.Reason) {
	if len(data) < ethernetHeaderLen {
		return 0, nil, core.Reason{Kind: core.ReasonTooShortForLink}
	}

	etherType := binary.BigEndian.Uint16(data[12:14])
	offset := ethernetHeaderLen

	if etherType == etherTypeVLAN {
		if len(data) < offset+vlanHeaderLen {
			return 0, nil, core.Reason{Kind: core.ReasonTooShortForLink}
		}
		// VLAN header: 2 bytes TCI + 2 bytes EtherType
		etherType = binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += vlanHeaderLen

		if isVLAN(etherType) {
			return 0, nil, core.Reason{Kind: core.ReasonNestedVLAN}
		}
	}

	return etherType, data[offset:], core.Reason{}
}

// isVLAN reports whether etherType announces another tag after an 802.1Q one.
func isVLAN(etherType uint16) bool {
	return etherType == etherTypeVLAN || etherType == etherTypeQinQ
}
