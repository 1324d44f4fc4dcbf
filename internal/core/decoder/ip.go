// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"

	"firestige.xyz/s2onet/internal/core"
)

const ipv4HeaderMinLen = 20

// decodeIPv4 decodes the IPv4 header and hands the rest to the transport stage.
// IP options are skipped using IHL and never inspected.
func decodeIPv4(data []byte) core.ProtocolRecord {
	if len(data) < ipv4HeaderMinLen {
		return core.Undecodable(core.Reason{Kind: core.ReasonNetworkTruncated})
	}

	if version := data[0] >> 4; version != 4 {
		return core.Undecodable(core.Reason{Kind: core.ReasonBadIPv4Header})
	}

	// IHL (Internet Header Length) - lower 4 bits of first byte, in 32-bit words
	headerLen := int(data[0]&0x0F) * 4
	if headerLen < ipv4HeaderMinLen {
		return core.Undecodable(core.Reason{Kind: core.ReasonBadIPv4Header})
	}
	if len(data) < headerLen {
		return core.Undecodable(core.Reason{Kind: core.ReasonNetworkTruncated})
	}

	rec := core.ProtocolRecord{Proto: data[9]}
	copy(rec.SrcIP[:], data[12:16])
	copy(rec.DstIP[:], data[16:20])

	// Non-initial fragments carry no transport header.
	if fragmentOffset(data) != 0 {
		rec.Kind = core.KindOther
		return rec
	}

	return decodeTransport(rec, data[headerLen:])
}

// fragmentOffset returns the 13-bit fragment offset field.
func fragmentOffset(ipHeader []byte) uint16 {
	return binary.BigEndian.Uint16(ipHeader[6:8]) & 0x1FFF
}
