package driver

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/s2onet/internal/core"
)

func TestOpenErrorMapping(t *testing.T) {
	tests := []struct {
		code uint32
		want error
	}{
		{5, core.ErrInsufficientPrivilege},
		{87, core.ErrBadFilter},
		{2, core.ErrDriverRejected},
		{1275, core.ErrDriverRejected},
	}
	for _, tt := range tests {
		err := openError(tt.code)
		assert.ErrorIs(t, err, tt.want, "code %d", tt.code)
		code, ok := core.DriverCode(err)
		assert.True(t, ok)
		assert.Equal(t, tt.code, code)
	}
}

func TestRecvErrorMapping(t *testing.T) {
	tests := []struct {
		code uint32
		want error
	}{
		{232, core.ErrClosed},
		{6, core.ErrClosed},
		{995, core.ErrClosed},
		{122, core.ErrTruncated},
		{31, core.ErrDriverFault},
		{0, core.ErrDriverFault},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, recvError(tt.code), tt.want, "code %d", tt.code)
	}
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "closed", errorKind(recvError(232)))
	assert.Equal(t, "truncated", errorKind(recvError(122)))
	assert.Equal(t, "bad_filter", errorKind(openError(87)))
	assert.Equal(t, "insufficient_privilege", errorKind(openError(5)))
	assert.Equal(t, "driver_rejected", errorKind(openError(1)))
	assert.Equal(t, "driver_fault", errorKind(errors.New("x")))
}

func TestDirectionSideChannel(t *testing.T) {
	addr := make([]byte, addressSize)
	assert.Equal(t, core.DirectionInbound, directionOf(AddressWinDivert2, addr))

	EncodeDirection(addr, core.DirectionOutbound)
	assert.Equal(t, byte(0x02), addr[10])
	assert.Equal(t, core.DirectionOutbound, directionOf(AddressWinDivert2, addr))
	assert.Equal(t, core.DirectionUnknown, directionOf(AddressNone, addr))

	EncodeDirection(addr, core.DirectionInbound)
	assert.Equal(t, core.DirectionInbound, directionOf(AddressWinDivert2, addr))

	// Other flag bits are preserved.
	addr[8] = 0x01
	EncodeDirection(addr, core.DirectionOutbound)
	assert.Equal(t, byte(0x01), addr[8])

	assert.Equal(t, core.DirectionUnknown, directionOf(AddressWinDivert2, addr[:4]))
}

func TestParseAddressLayout(t *testing.T) {
	l, err := ParseAddressLayout("windivert2")
	require.NoError(t, err)
	assert.Equal(t, AddressWinDivert2, l)
	assert.Equal(t, "windivert2", l.String())

	l, err = ParseAddressLayout("none")
	require.NoError(t, err)
	assert.Equal(t, AddressNone, l)

	_, err = ParseAddressLayout("pcap")
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "WinDivert.dll")
	require.NoError(t, os.WriteFile(lib, []byte("MZ"), 0644))
	exeDir := func() (string, error) { return dir, nil }
	emptyDir := func() (string, error) { return t.TempDir(), nil }

	t.Run("override wins", func(t *testing.T) {
		abi := DefaultABI()
		abi.LibraryOverride = lib
		path, err := resolvePath(abi, emptyDir)
		require.NoError(t, err)
		assert.Equal(t, lib, path)
	})

	t.Run("missing override does not fall through", func(t *testing.T) {
		abi := DefaultABI()
		abi.LibraryOverride = filepath.Join(dir, "missing.dll")
		_, err := resolvePath(abi, exeDir)
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrNotFound)
		var le *core.LoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, abi.LibraryOverride, le.Path)
	})

	t.Run("next to executable", func(t *testing.T) {
		path, err := resolvePath(DefaultABI(), exeDir)
		require.NoError(t, err)
		assert.Equal(t, lib, path)
	})

	t.Run("os search path", func(t *testing.T) {
		path, err := resolvePath(DefaultABI(), emptyDir)
		require.NoError(t, err)
		assert.Equal(t, "WinDivert.dll", path)
	})

	t.Run("executable lookup fails", func(t *testing.T) {
		path, err := resolvePath(DefaultABI(), func() (string, error) { return "", errors.New("no exe") })
		require.NoError(t, err)
		assert.Equal(t, "WinDivert.dll", path)
	})

	t.Run("no library name", func(t *testing.T) {
		_, err := resolvePath(ABI{}, exeDir)
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestDefaultABI(t *testing.T) {
	abi := DefaultABI()
	assert.Equal(t, uint64(0x5), abi.Flags)
	assert.Equal(t, "WinDivertRecv", abi.Symbols.Recv)
	assert.Empty(t, abi.Symbols.LastError)
	assert.True(t, abi.sameLibrary(DefaultABI()))

	other := DefaultABI()
	other.Priority = 10
	assert.True(t, abi.sameLibrary(other))
	other.Symbols.Open = "OtherOpen"
	assert.False(t, abi.sameLibrary(other))
}
