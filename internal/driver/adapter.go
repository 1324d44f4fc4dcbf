package driver

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"firestige.xyz/s2onet/internal/core"
	"firestige.xyz/s2onet/internal/log"
	"firestige.xyz/s2onet/internal/metrics"
)

// DefaultFilter captures everything.
const DefaultFilter = "true"

// Handle is an open driver handle. It is used by exactly one receiving
// goroutine; Close may be called from any goroutine.
type Handle struct {
	raw    uintptr
	layout AddressLayout
	closed atomic.Bool
	addr   []byte // Address block, written only by Recv
}

// Closed reports whether Close has been called on h.
func (h *Handle) Closed() bool {
	return h.closed.Load()
}

// RecvOutcome describes one received frame.
type RecvOutcome struct {
	Len       int
	Direction core.Direction
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger used for load and close diagnostics.
func WithLogger(l log.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithExecutableDir replaces the executable directory lookup.
func WithExecutableDir(fn func() (string, error)) Option {
	return func(a *Adapter) { a.exeDir = fn }
}

// Adapter loads a driver library once and exposes its entry points as
// typed operations.
type Adapter struct {
	loader Loader
	logger log.Logger
	exeDir func() (string, error)

	mu      sync.Mutex
	abi     ABI
	path    string
	binding Binding
	live    atomic.Int64
}

// NewAdapter creates an adapter that loads libraries through loader.
func NewAdapter(loader Loader, opts ...Option) *Adapter {
	a := &Adapter{
		loader: loader,
		logger: log.GetLogger(),
		exeDir: executableDir,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Load loads the library described by abi. Repeated calls for the same
// library succeed without reloading and take the new open parameters.
// A different library while one is loaded fails with core.ErrAlreadyLoaded.
func (a *Adapter) Load(abi ABI) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.binding != nil {
		if !a.abi.sameLibrary(abi) {
			return &core.LoadError{Path: a.path, Err: core.ErrAlreadyLoaded}
		}
		a.abi = abi
		return nil
	}

	path, err := resolvePath(abi, a.exeDir)
	if err != nil {
		return err
	}

	b, err := a.loader.Load(path, abi.Symbols)
	if err != nil {
		var le *core.LoadError
		if !errors.As(err, &le) {
			err = &core.LoadError{Path: path, Err: fmt.Errorf("%w: %v", core.ErrInvalidLibrary, err)}
		}
		return err
	}

	a.abi = abi
	a.path = path
	a.binding = b
	a.logger.WithField("path", path).Info("capture driver loaded")
	return nil
}

// Loaded reports whether a library is loaded.
func (a *Adapter) Loaded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.binding != nil
}

// Path returns the path the library was loaded from.
func (a *Adapter) Path() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.path
}

// OpenHandles returns the number of handles opened and not yet closed.
func (a *Adapter) OpenHandles() int {
	return int(a.live.Load())
}

func (a *Adapter) current() (Binding, ABI) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.binding, a.abi
}

// Open opens a capture handle. An empty filter captures everything.
func (a *Adapter) Open(filter string) (*Handle, error) {
	b, abi := a.current()
	if b == nil {
		return nil, core.ErrNotLoaded
	}
	if filter == "" {
		filter = DefaultFilter
	}

	raw, code := b.Open(filter, abi.Layer, abi.Priority, abi.Flags)
	if raw == 0 {
		err := openError(code)
		metrics.DriverErrorsTotal.WithLabelValues("open", errorKind(err)).Inc()
		return nil, err
	}

	a.live.Add(1)
	return &Handle{raw: raw, layout: abi.AddressLayout, addr: make([]byte, addressSize)}, nil
}

// Recv blocks until a frame is written into buf or h is closed. A close
// from another goroutine surfaces as core.ErrClosed.
func (a *Adapter) Recv(h *Handle, buf []byte) (RecvOutcome, error) {
	if h.closed.Load() {
		return RecvOutcome{}, &core.DriverError{Op: "recv", Err: core.ErrClosed}
	}
	b, _ := a.current()
	if b == nil {
		return RecvOutcome{}, core.ErrNotLoaded
	}

	n, code, ok := b.Recv(h.raw, buf, h.addr)
	if !ok {
		if h.closed.Load() {
			return RecvOutcome{}, &core.DriverError{Op: "recv", Code: code, Err: core.ErrClosed}
		}
		err := recvError(code)
		if !errors.Is(err, core.ErrClosed) {
			metrics.DriverErrorsTotal.WithLabelValues("recv", errorKind(err)).Inc()
		}
		return RecvOutcome{}, err
	}
	if n > len(buf) {
		err := &core.DriverError{Op: "recv", Code: codeInsufficientBuffer, Err: core.ErrTruncated}
		metrics.DriverErrorsTotal.WithLabelValues("recv", errorKind(err)).Inc()
		return RecvOutcome{}, err
	}

	return RecvOutcome{Len: n, Direction: directionOf(h.layout, h.addr)}, nil
}

// Close releases h and unblocks a Recv in flight on it. A second Close
// returns core.ErrAlreadyClosed.
func (a *Adapter) Close(h *Handle) error {
	if !h.closed.CompareAndSwap(false, true) {
		return &core.DriverError{Op: "close", Err: core.ErrAlreadyClosed}
	}
	defer a.live.Add(-1)

	b, _ := a.current()
	if b == nil {
		return core.ErrNotLoaded
	}
	if code, ok := b.Close(h.raw); !ok {
		err := closeError(code)
		metrics.DriverErrorsTotal.WithLabelValues("close", errorKind(err)).Inc()
		return err
	}
	return nil
}

// Unload releases the library. It refuses while handles are open.
func (a *Adapter) Unload() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.binding == nil {
		return nil
	}
	if n := a.live.Load(); n > 0 {
		return fmt.Errorf("unload %s: %d handles still open", a.path, n)
	}
	err := a.binding.Release()
	a.logger.WithField("path", a.path).Debug("capture driver unloaded")
	a.binding = nil
	a.path = ""
	return err
}
