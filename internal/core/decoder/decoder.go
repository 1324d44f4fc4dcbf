// Package decoder turns raw captured frames into typed protocol records.
//
// Decoding is pure and stateless: every input yields exactly one
// core.ProtocolRecord, including Undecodable records for frames outside the
// decoded set, so decoding a batch never partially fails.
package decoder

import "firestige.xyz/s2onet/internal/core"

// Decode decodes data captured on the given link type.
func Decode(data []byte, link core.LinkType) core.ProtocolRecord {
	if link == core.LinkRawIP {
		return decodeRawIP(data)
	}

	etherType, payload, reason := decodeEthernet(data)
	if reason.Kind != core.ReasonNone {
		return core.Undecodable(reason)
	}

	switch etherType {
	case etherTypeIPv4:
		return decodeIPv4(payload)
	case etherTypeIPv6:
		return core.Undecodable(core.Reason{Kind: core.ReasonIPv6NotDecoded})
	default:
		return core.Undecodable(core.Reason{Kind: core.ReasonUnknownEtherType, EtherType: etherType})
	}
}

// DecodeFrame decodes a stored frame.
func DecodeFrame(f core.Frame) core.ProtocolRecord {
	return Decode(f.Data, f.LinkType)
}

// decodeRawIP dispatches on the IP version nibble for frames without a link header.
func decodeRawIP(data []byte) core.ProtocolRecord {
	if len(data) < 1 {
		return core.Undecodable(core.Reason{Kind: core.ReasonNetworkTruncated})
	}
	switch version := data[0] >> 4; version {
	case 4:
		return decodeIPv4(data)
	case 6:
		return core.Undecodable(core.Reason{Kind: core.ReasonIPv6NotDecoded})
	default:
		return core.Undecodable(core.Reason{Kind: core.ReasonUnknownIPVersion, Version: version})
	}
}
