package driver

// Binding is the raw function table of a loaded driver library. Codes are
// the driver's or the OS's numeric error values; the Adapter maps them.
//
// Implementations must allow Close to run concurrently with a Recv blocked
// on the same handle, and that Close must make the Recv return.
type Binding interface {
	// Open returns a non-zero raw handle, or 0 and an error code.
	Open(filter string, layer uint8, priority int16, flags uint64) (raw uintptr, code uint32)
	// Recv blocks until a frame is written to buf or the handle is closed.
	// addr receives the driver's per-frame address block.
	Recv(raw uintptr, buf, addr []byte) (n int, code uint32, ok bool)
	Close(raw uintptr) (code uint32, ok bool)
	// Release unloads the library. No handle may be in use.
	Release() error
}

// Loader loads a driver library and resolves its exports. Failures are
// *core.LoadError values wrapping core.ErrNotFound, core.ErrMissingExport
// or core.ErrInvalidLibrary.
type Loader interface {
	Load(path string, syms Symbols) (Binding, error)
}
