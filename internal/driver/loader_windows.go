//go:build windows

package driver

import (
	"errors"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"firestige.xyz/s2onet/internal/core"
)

type dllLoader struct{}

// DefaultLoader returns the platform loader.
func DefaultLoader() Loader {
	return dllLoader{}
}

func (dllLoader) Load(path string, syms Symbols) (Binding, error) {
	dll, err := windows.LoadDLL(path)
	if err != nil {
		kind := core.ErrInvalidLibrary
		var de *windows.DLLError
		if errors.As(err, &de) {
			var errno syscall.Errno
			if errors.As(de.Err, &errno) && uint32(errno) == codeModNotFound {
				kind = core.ErrNotFound
			}
		}
		return nil, &core.LoadError{Path: path, Err: kind}
	}

	b := &dllBinding{dll: dll}
	procs := []procSlot{
		{syms.Open, &b.open},
		{syms.Recv, &b.recv},
		{syms.Close, &b.close},
	}
	if syms.LastError != "" {
		procs = append(procs, procSlot{syms.LastError, &b.lastError})
	}
	for _, p := range procs {
		proc, err := dll.FindProc(p.name)
		if err != nil {
			dll.Release()
			return nil, &core.LoadError{Path: path, Symbol: p.name, Err: core.ErrMissingExport}
		}
		*p.dst = proc
	}
	return b, nil
}

type procSlot struct {
	name string
	dst  **windows.Proc
}

type dllBinding struct {
	dll       *windows.DLL
	open      *windows.Proc
	recv      *windows.Proc
	close     *windows.Proc
	lastError *windows.Proc
}

const is32bit = unsafe.Sizeof(uintptr(0)) == 4

func (b *dllBinding) Open(filter string, layer uint8, priority int16, flags uint64) (uintptr, uint32) {
	p, err := windows.BytePtrFromString(filter)
	if err != nil {
		return 0, codeInvalidParameter
	}

	var r1 uintptr
	var e1 error
	if is32bit {
		r1, _, e1 = b.open.Call(uintptr(unsafe.Pointer(p)), uintptr(layer), uintptr(priority), uintptr(uint32(flags)), uintptr(flags>>32))
	} else {
		r1, _, e1 = b.open.Call(uintptr(unsafe.Pointer(p)), uintptr(layer), uintptr(priority), uintptr(flags))
	}
	if r1 == 0 || r1 == uintptr(windows.InvalidHandle) {
		return 0, b.code(e1)
	}
	return r1, 0
}

func (b *dllBinding) Recv(raw uintptr, buf, addr []byte) (int, uint32, bool) {
	var n uint32
	var bufPtr, addrPtr unsafe.Pointer
	if len(buf) > 0 {
		bufPtr = unsafe.Pointer(&buf[0])
	}
	if len(addr) >= addressSize {
		addrPtr = unsafe.Pointer(&addr[0])
	}

	r1, _, e1 := b.recv.Call(raw, uintptr(bufPtr), uintptr(len(buf)), uintptr(unsafe.Pointer(&n)), uintptr(addrPtr))
	if r1 == 0 {
		return 0, b.code(e1), false
	}
	return int(n), 0, true
}

func (b *dllBinding) Close(raw uintptr) (uint32, bool) {
	r1, _, e1 := b.close.Call(raw)
	if r1 == 0 {
		return b.code(e1), false
	}
	return 0, true
}

func (b *dllBinding) Release() error {
	return b.dll.Release()
}

// code prefers the library's own last-error export over the OS value.
func (b *dllBinding) code(callErr error) uint32 {
	if b.lastError != nil {
		r1, _, _ := b.lastError.Call()
		return uint32(r1)
	}
	var errno syscall.Errno
	if errors.As(callErr, &errno) {
		return uint32(errno)
	}
	return 0
}
