// Package drivertest provides an in-memory capture driver for tests.
//
// Driver.Recv blocks until a frame is injected or the handle is closed,
// which is the contract a real driver gives. Opens and closes are counted
// so tests can check that no handle is left open.
package drivertest

import (
	"sync"

	"firestige.xyz/s2onet/internal/core"
	"firestige.xyz/s2onet/internal/driver"
)

// Win32 codes the fake reports.
const (
	CodeAccessDenied     uint32 = 5
	CodeInvalidParameter uint32 = 87
	CodeNoData           uint32 = 232
	CodeGenFailure       uint32 = 31
)

type item struct {
	data      []byte
	direction core.Direction
	code      uint32 // Non-zero makes Recv fail with this code
	panics    bool
}

type handle struct {
	done chan struct{}
	once sync.Once
}

func (h *handle) shut() { h.once.Do(func() { close(h.done) }) }

// Driver is a fake driver.Binding.
type Driver struct {
	mu          sync.Mutex
	next        uintptr
	handles     map[uintptr]*handle
	opens       int
	closes      int
	releases    int
	filters     []string
	openCode    uint32
	ignoreClose bool
	stuck       chan struct{}
	blocked     int

	queue chan item
}

// New creates a driver with room for depth queued frames.
func New(depth int) *Driver {
	if depth <= 0 {
		depth = 1024
	}
	return &Driver{
		handles: make(map[uintptr]*handle),
		queue:   make(chan item, depth),
		stuck:   make(chan struct{}),
	}
}

// FailOpen makes every following Open fail with code. Zero clears it.
func (d *Driver) FailOpen(code uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openCode = code
}

// IgnoreClose makes Close succeed without unblocking Recv, as a driver that
// breaks its contract would. Unstick releases the blocked receivers.
func (d *Driver) IgnoreClose(ignore bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ignoreClose = ignore
}

// Unstick releases every Recv blocked so far by IgnoreClose.
func (d *Driver) Unstick() {
	d.mu.Lock()
	defer d.mu.Unlock()
	close(d.stuck)
	d.stuck = make(chan struct{})
}

// Inject queues a frame for the next Recv.
func (d *Driver) Inject(data []byte, dir core.Direction) {
	d.queue <- item{data: append([]byte(nil), data...), direction: dir}
}

// InjectError makes the next Recv fail with code.
func (d *Driver) InjectError(code uint32) {
	d.queue <- item{code: code}
}

// InjectPanic makes the next Recv panic.
func (d *Driver) InjectPanic() {
	d.queue <- item{panics: true}
}

// Opens returns the number of successful opens.
func (d *Driver) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Closes returns the number of successful closes.
func (d *Driver) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// Live returns the number of handles opened and not closed.
func (d *Driver) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens - d.closes
}

// Releases returns how many times the library was released.
func (d *Driver) Releases() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.releases
}

// Blocked returns how many Recv calls are waiting for a frame or a close.
func (d *Driver) Blocked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blocked
}

// Filters returns the filter of every open call.
func (d *Driver) Filters() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.filters...)
}

func (d *Driver) Open(filter string, _ uint8, _ int16, _ uint64) (uintptr, uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.filters = append(d.filters, filter)
	if d.openCode != 0 {
		return 0, d.openCode
	}
	d.next++
	d.handles[d.next] = &handle{done: make(chan struct{})}
	d.opens++
	return d.next, 0
}

func (d *Driver) Recv(raw uintptr, buf, addr []byte) (int, uint32, bool) {
	d.mu.Lock()
	h, ok := d.handles[raw]
	stuck := d.stuck
	d.mu.Unlock()
	if !ok {
		return 0, 6, false
	}

	select {
	case <-h.done:
		return 0, CodeNoData, false
	default:
	}

	d.setBlocked(1)
	defer d.setBlocked(-1)

	select {
	case <-h.done:
		return 0, CodeNoData, false
	case <-stuck:
		return 0, CodeNoData, false
	case it := <-d.queue:
		if it.panics {
			panic("drivertest: injected panic")
		}
		if it.code != 0 {
			return 0, it.code, false
		}
		driver.EncodeDirection(addr, it.direction)
		if len(it.data) > len(buf) {
			return 0, 122, false
		}
		return copy(buf, it.data), 0, true
	}
}

func (d *Driver) setBlocked(delta int) {
	d.mu.Lock()
	d.blocked += delta
	d.mu.Unlock()
}

func (d *Driver) Close(raw uintptr) (uint32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	h, ok := d.handles[raw]
	if !ok {
		return 6, false
	}
	delete(d.handles, raw)
	d.closes++
	if !d.ignoreClose {
		h.shut()
	}
	return 0, true
}

func (d *Driver) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releases++
	return nil
}

// Loader hands out a Driver as a loaded library.
type Loader struct {
	Driver  *Driver
	Missing string // Export reported missing
	Err     error  // Returned as is when set

	mu    sync.Mutex
	paths []string
}

// NewLoader returns a loader for d.
func NewLoader(d *Driver) *Loader {
	return &Loader{Driver: d}
}

func (l *Loader) Load(path string, syms driver.Symbols) (driver.Binding, error) {
	l.mu.Lock()
	l.paths = append(l.paths, path)
	l.mu.Unlock()

	if l.Err != nil {
		return nil, l.Err
	}
	for _, name := range []string{syms.Open, syms.Recv, syms.Close, syms.LastError} {
		if name != "" && name == l.Missing {
			return nil, &core.LoadError{Path: path, Symbol: name, Err: core.ErrMissingExport}
		}
	}
	return l.Driver, nil
}

// Paths returns the path of every load call.
func (l *Loader) Paths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...)
}
