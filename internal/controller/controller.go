// Package controller is the single entry point for capture: it owns the
// driver adapter, the packet store and the capture session.
package controller

import (
	"errors"
	"fmt"
	"sync"

	"firestige.xyz/s2onet/internal/config"
	"firestige.xyz/s2onet/internal/core"
	"firestige.xyz/s2onet/internal/core/decoder"
	"firestige.xyz/s2onet/internal/driver"
	"firestige.xyz/s2onet/internal/log"
	"firestige.xyz/s2onet/internal/metrics"
	"firestige.xyz/s2onet/internal/session"
	"firestige.xyz/s2onet/internal/store"
)

// DecodedFrame pairs a stored frame with its decoded record.
type DecodedFrame struct {
	Frame  core.Frame
	Record core.ProtocolRecord
}

// Option configures a Controller.
type Option func(*options)

type options struct {
	loader driver.Loader
	logger log.Logger
	id     string
	exeDir func() (string, error)
}

// WithLoader replaces the platform driver loader.
func WithLoader(l driver.Loader) Option {
	return func(o *options) { o.loader = l }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSessionID names the capture session in logs and metrics.
func WithSessionID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithExecutableDir replaces the lookup of the directory searched for the
// driver library before the OS path.
func WithExecutableDir(fn func() (string, error)) Option {
	return func(o *options) { o.exeDir = fn }
}

// Controller mediates between the UI and the capture session.
type Controller struct {
	driverCfg config.DriverConfig
	adapter   *driver.Adapter
	store     *store.Store
	session   *session.Session
	logger    log.Logger

	mu sync.Mutex // Serializes Start, Reset, Probe and Close

	countMu sync.Mutex
	counted uint64 // Highest seq already counted in DecodedRecordsTotal
}

// New creates a controller for the driver described by drvCfg. Nothing is
// loaded until Start or Probe.
func New(drvCfg config.DriverConfig, opts ...Option) *Controller {
	o := options{
		loader: driver.DefaultLoader(),
		logger: log.GetLogger(),
		id:     "capture",
	}
	for _, opt := range opts {
		opt(&o)
	}

	adapterOpts := []driver.Option{driver.WithLogger(o.logger)}
	if o.exeDir != nil {
		adapterOpts = append(adapterOpts, driver.WithExecutableDir(o.exeDir))
	}
	adapter := driver.NewAdapter(o.loader, adapterOpts...)
	st := store.New(config.DefaultBufferCapacity)

	return &Controller{
		driverCfg: drvCfg,
		adapter:   adapter,
		store:     st,
		session:   session.New(o.id, adapter, st, o.logger),
		logger:    o.logger,
	}
}

// ABI builds the driver ABI table from configuration.
func ABI(drvCfg config.DriverConfig, override string) (driver.ABI, error) {
	layout, err := driver.ParseAddressLayout(drvCfg.AddressLayout)
	if err != nil {
		return driver.ABI{}, err
	}
	return driver.ABI{
		LibraryName:     drvCfg.Library,
		LibraryOverride: override,
		Symbols: driver.Symbols{
			Open:      drvCfg.Symbols.Open,
			Recv:      drvCfg.Symbols.Recv,
			Close:     drvCfg.Symbols.Close,
			LastError: drvCfg.Symbols.LastError,
		},
		Layer:         drvCfg.Layer,
		Priority:      drvCfg.Priority,
		Flags:         drvCfg.Flags,
		AddressLayout: layout,
	}, nil
}

func (c *Controller) load(cfg config.CaptureConfig) error {
	if err := c.driverCfg.Validate(); err != nil {
		return err
	}
	abi, err := ABI(c.driverCfg, cfg.LibraryOverridePath)
	if err != nil {
		return err
	}
	if err := c.adapter.Load(abi); err != nil {
		return fmt.Errorf("%w: %w", core.ErrLoad, err)
	}
	return nil
}

// Start loads the driver if needed and starts a capture run. It returns
// once the driver handle is open, without waiting for the first frame.
func (c *Controller) Start(cfg config.CaptureConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.State().Active() {
		return core.ErrAlreadyRunning
	}
	if err := c.load(cfg); err != nil {
		return err
	}

	err := c.session.Start(session.Params{
		Filter:      cfg.Filter,
		MTUHint:     cfg.LinkLayerMTUHint,
		StopTimeout: cfg.StopTimeout(),
		LinkType:    cfg.Link(),
	})
	switch {
	case err == nil:
	case errors.Is(err, core.ErrAlreadyRunning), errors.Is(err, core.ErrSessionFailed):
		return err
	default:
		return fmt.Errorf("%w: %w", core.ErrOpen, err)
	}

	// The store is resized only after a successful open so a failed start
	// leaves it untouched.
	if trimmed := c.store.Resize(cfg.BufferCapacity); trimmed > 0 {
		c.logger.WithField("trimmed", trimmed).Info("packet store shrunk, oldest frames dropped")
	}
	return nil
}

// Stop stops the running capture, waiting up to the configured stop timeout.
func (c *Controller) Stop() error {
	return c.session.Stop()
}

// Status returns the session state and counters.
func (c *Controller) Status() session.Snapshot {
	return c.session.Status()
}

// SnapshotRaw returns the stored frames in capture order.
func (c *Controller) SnapshotRaw() []core.Frame {
	return c.store.Snapshot()
}

// SnapshotDecoded returns the stored frames with their decoded records.
// Each stored frame is counted in the decoded records metric once, however
// many snapshots include it.
func (c *Controller) SnapshotDecoded() []DecodedFrame {
	frames := c.store.Snapshot()
	out := make([]DecodedFrame, len(frames))
	for i, f := range frames {
		out[i] = DecodedFrame{Frame: f, Record: decoder.DecodeFrame(f)}
	}
	c.countDecoded(out)
	return out
}

func (c *Controller) countDecoded(frames []DecodedFrame) {
	c.countMu.Lock()
	defer c.countMu.Unlock()
	for _, df := range frames {
		if df.Frame.Seq <= c.counted {
			continue
		}
		metrics.DecodedRecordsTotal.WithLabelValues(df.Record.Kind.String()).Inc()
		c.counted = df.Frame.Seq
	}
}

// Reset clears a failed session so a new capture can start.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Reset()
}

// Probe checks that the driver loads and a handle can be opened with
// cfg's filter. The handle is closed immediately. It refuses while a capture
// is active so a running session keeps the only live handle.
func (c *Controller) Probe(cfg config.CaptureConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.State().Active() {
		return core.ErrAlreadyRunning
	}
	if err := c.load(cfg); err != nil {
		return err
	}

	h, err := c.adapter.Open(cfg.Filter)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrOpen, err)
	}
	if err := c.adapter.Close(h); err != nil {
		c.logger.WithError(err).Warn("closing probe handle failed")
	}
	c.logger.WithField("path", c.adapter.Path()).Info("capture driver probe succeeded")
	return nil
}

// DriverPath returns the path the driver was loaded from, empty if not loaded.
func (c *Controller) DriverPath() string {
	return c.adapter.Path()
}

// Close stops a running capture and unloads the driver.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.session.Stop(); err != nil && !errors.Is(err, core.ErrNotRunning) {
		return err
	}
	return c.adapter.Unload()
}
