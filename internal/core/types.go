// Package core defines core types with zero external dependencies.
package core

import (
	"fmt"
	"net/netip"
)

// IPv4Addr is an IPv4 address as it appears on the wire.
type IPv4Addr [4]byte

// Addr converts to the stdlib value type.
func (a IPv4Addr) Addr() netip.Addr {
	return netip.AddrFrom4(a)
}

func (a IPv4Addr) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3])
}

// RecordKind tags a ProtocolRecord.
type RecordKind uint8

const (
	KindUndecodable RecordKind = iota
	KindTCP
	KindUDP
	KindICMP
	KindIGMP
	KindIPv6Tunneled
	KindOther
)

var recordKindNames = [...]string{
	KindUndecodable:  "undecodable",
	KindTCP:          "tcp",
	KindUDP:          "udp",
	KindICMP:         "icmp",
	KindIGMP:         "igmp",
	KindIPv6Tunneled: "ipv6-tunneled",
	KindOther:        "other",
}

func (k RecordKind) String() string {
	if int(k) < len(recordKindNames) {
		return recordKindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ReasonKind says why a frame could not be decoded.
type ReasonKind uint8

const (
	ReasonNone ReasonKind = iota
	ReasonTooShortForLink
	ReasonIPv6NotDecoded
	ReasonUnknownEtherType
	ReasonNestedVLAN
	ReasonNetworkTruncated
	ReasonBadIPv4Header
	ReasonTransportTruncated
	ReasonUnknownIPVersion
)

// Reason carries the detail of an undecodable frame. Only the field that
// matches Kind is meaningful.
type Reason struct {
	Kind      ReasonKind
	EtherType uint16 // ReasonUnknownEtherType
	Proto     uint8  // ReasonTransportTruncated
	Version   uint8  // ReasonUnknownIPVersion
}

func (r Reason) String() string {
	switch r.Kind {
	case ReasonNone:
		return "none"
	case ReasonTooShortForLink:
		return "too short for link header"
	case ReasonIPv6NotDecoded:
		return "ipv6 not decoded"
	case ReasonUnknownEtherType:
		return fmt.Sprintf("unknown ether type 0x%04x", r.EtherType)
	case ReasonNestedVLAN:
		return "nested vlan"
	case ReasonNetworkTruncated:
		return "ipv4 header truncated"
	case ReasonBadIPv4Header:
		return "bad ipv4 header"
	case ReasonTransportTruncated:
		return fmt.Sprintf("transport truncated (proto %d)", r.Proto)
	case ReasonUnknownIPVersion:
		return fmt.Sprintf("unknown ip version %d", r.Version)
	default:
		return fmt.Sprintf("reason(%d)", uint8(r.Kind))
	}
}

// ProtocolRecord is the decoded network-layer view of a Frame.
//
// Proto holds the IANA protocol number for every kind except Undecodable.
// Ports are set for TCP and UDP only. Reason is set for Undecodable only.
type ProtocolRecord struct {
	Kind    RecordKind
	Proto   uint8
	SrcIP   IPv4Addr
	DstIP   IPv4Addr
	SrcPort uint16
	DstPort uint16
	Reason  Reason
}

// Undecodable builds a record for a frame outside the decoded set.
func Undecodable(r Reason) ProtocolRecord {
	return ProtocolRecord{Kind: KindUndecodable, Reason: r}
}

// Decoded reports whether the record carries network-layer fields.
func (r ProtocolRecord) Decoded() bool {
	return r.Kind != KindUndecodable
}

func (r ProtocolRecord) String() string {
	switch r.Kind {
	case KindUndecodable:
		return "undecodable: " + r.Reason.String()
	case KindTCP, KindUDP:
		return fmt.Sprintf("%s %s:%d -> %s:%d", r.Kind, r.SrcIP, r.SrcPort, r.DstIP, r.DstPort)
	case KindOther:
		return fmt.Sprintf("proto %d %s -> %s", r.Proto, r.SrcIP, r.DstIP)
	default:
		return fmt.Sprintf("%s %s -> %s", r.Kind, r.SrcIP, r.DstIP)
	}
}
