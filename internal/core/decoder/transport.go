// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"

	"github.com/google/gopacket/layers"

	"firestige.xyz/s2onet/internal/core"
)

const (
	udpHeaderLen    = 8
	tcpHeaderMinLen = 20

	// Protocol numbers
	protocolICMP = uint8(layers.IPProtocolICMPv4)
	protocolIGMP = uint8(layers.IPProtocolIGMP)
	protocolTCP  = uint8(layers.IPProtocolTCP)
	protocolUDP  = uint8(layers.IPProtocolUDP)
	protocolIPv6 = uint8(layers.IPProtocolIPv6)
)

// decodeTransport fills in the record kind for rec.Proto. Once a port-bearing
// transport is identified a short payload is reported as truncated rather
// than degraded to KindOther.
func decodeTransport(rec core.ProtocolRecord, data []byte) core.ProtocolRecord {
	switch rec.Proto {
	case protocolTCP:
		if len(data) < tcpHeaderMinLen {
			return truncated(rec.Proto)
		}
		rec.Kind = core.KindTCP
		rec.SrcPort, rec.DstPort = ports(data)
	case protocolUDP:
		if len(data) < udpHeaderLen {
			return truncated(rec.Proto)
		}
		rec.Kind = core.KindUDP
		rec.SrcPort, rec.DstPort = ports(data)
	case protocolICMP:
		rec.Kind = core.KindICMP
	case protocolIGMP:
		rec.Kind = core.KindIGMP
	case protocolIPv6:
		rec.Kind = core.KindIPv6Tunneled
	default:
		rec.Kind = core.KindOther
	}
	return rec
}

// ports reads the source and destination ports shared by TCP and UDP.
func ports(data []byte) (uint16, uint16) {
	return binary.BigEndian.Uint16(data[0:2]), binary.BigEndian.Uint16(data[2:4])
}

func truncated(proto uint8) core.ProtocolRecord {
	return core.Undecodable(core.Reason{Kind: core.ReasonTransportTruncated, Proto: proto})
}
