// Package driver is a typed facade over a dynamically loaded capture driver.
//
// The library and its exports are named by an ABI table so nothing here is
// bound to one vendor. The defaults describe WinDivert 2.x opened read-only.
package driver

import (
	"fmt"

	"firestige.xyz/s2onet/internal/core"
)

// Symbols names the exports resolved from the driver library. LastError is
// optional; when empty the OS last-error value of each call is used.
type Symbols struct {
	Open      string
	Recv      string
	Close     string
	LastError string
}

// AddressLayout selects how the per-frame address block is interpreted.
type AddressLayout uint8

const (
	// AddressNone ignores the address block, direction is always unknown.
	AddressNone AddressLayout = iota
	// AddressWinDivert2 reads the WINDIVERT_ADDRESS flag word.
	AddressWinDivert2
)

func (l AddressLayout) String() string {
	if l == AddressWinDivert2 {
		return "windivert2"
	}
	return "none"
}

// ParseAddressLayout maps a configuration value to an AddressLayout.
func ParseAddressLayout(s string) (AddressLayout, error) {
	switch s {
	case "windivert2":
		return AddressWinDivert2, nil
	case "none", "":
		return AddressNone, nil
	}
	return AddressNone, fmt.Errorf("%w: unknown address layout %q", core.ErrConfigInvalid, s)
}

// ABI describes the driver library and how handles are opened.
type ABI struct {
	LibraryName     string // File name searched next to the executable and on the OS path
	LibraryOverride string // Explicit path, must exist when set
	Symbols         Symbols
	Layer           uint8
	Priority        int16
	Flags           uint64
	AddressLayout   AddressLayout
}

const (
	flagSniff    uint64 = 0x0001
	flagRecvOnly uint64 = 0x0004
)

// DefaultABI targets WinDivert 2.x in sniff, receive-only mode on the network layer.
func DefaultABI() ABI {
	return ABI{
		LibraryName: "WinDivert.dll",
		Symbols: Symbols{
			Open:  "WinDivertOpen",
			Recv:  "WinDivertRecv",
			Close: "WinDivertClose",
		},
		Flags:         flagSniff | flagRecvOnly,
		AddressLayout: AddressWinDivert2,
	}
}

// sameLibrary reports whether a and b load the same library with the same exports.
func (a ABI) sameLibrary(b ABI) bool {
	return a.LibraryName == b.LibraryName &&
		a.LibraryOverride == b.LibraryOverride &&
		a.Symbols == b.Symbols
}
