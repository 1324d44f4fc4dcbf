package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/s2onet/internal/config"
	"firestige.xyz/s2onet/internal/controller"
	"firestige.xyz/s2onet/internal/core"
	"firestige.xyz/s2onet/internal/session"
	"firestige.xyz/s2onet/internal/tui"
)

// Capturer is the part of controller.Controller the capture command uses.
type Capturer interface {
	Start(cfg config.CaptureConfig) error
	Stop() error
	Status() session.Snapshot
	SnapshotDecoded() []controller.DecodedFrame
	Probe(cfg config.CaptureConfig) error
}

type captureOptions struct {
	duration time.Duration
	probe    bool
	filter   string
	limit    int
	quiet    bool
}

var captureOpts captureOptions

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture packets for a while and print the decoded records",
	Long: `Start a capture, wait for --duration or Ctrl+C, stop it and print one
line per stored frame.

Examples:
  s2onet capture                          # Capture everything for 10s
  s2onet capture -d 30s -f "tcp"          # Driver filter expression
  s2onet capture --probe                  # Only check the driver loads and opens
  s2onet capture -c config.yml -n 50      # Print the last 50 records`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c := controller.New(cfg.Driver)
		defer c.Close()

		if err := runCapture(ctx, c, cfg.Capture, captureOpts, os.Stdout); err != nil {
			return fmt.Errorf("capture failed: %w", err)
		}
		return nil
	},
}

func init() {
	captureCmd.Flags().DurationVarP(&captureOpts.duration, "duration", "d", 10*time.Second, "how long to capture")
	captureCmd.Flags().BoolVar(&captureOpts.probe, "probe", false, "load the driver, open and close a handle, then exit")
	captureCmd.Flags().StringVarP(&captureOpts.filter, "filter", "f", "", "driver filter expression (overrides capture.filter)")
	captureCmd.Flags().IntVarP(&captureOpts.limit, "limit", "n", 0, "print only the last n records (0 = all)")
	captureCmd.Flags().BoolVarP(&captureOpts.quiet, "quiet", "q", false, "print the status line only")
}

func runCapture(ctx context.Context, c Capturer, capCfg config.CaptureConfig, opts captureOptions, w io.Writer) error {
	if opts.filter != "" {
		capCfg.Filter = opts.filter
	}

	if opts.probe {
		if err := c.Probe(capCfg); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ Capture driver loaded and opened successfully")
		return nil
	}

	if err := c.Start(capCfg); err != nil {
		return err
	}

	timer := time.NewTimer(opts.duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	stopErr := c.Stop()
	if stopErr != nil && !errors.Is(stopErr, core.ErrNotRunning) {
		fmt.Fprintf(w, "stop: %v\n", stopErr)
	}

	st := c.Status()
	fmt.Fprintln(w, tui.FormatStatus(st))
	if opts.quiet {
		return nil
	}

	records := c.SnapshotDecoded()
	if opts.limit > 0 && len(records) > opts.limit {
		records = records[len(records)-opts.limit:]
	}
	for _, df := range records {
		fmt.Fprintln(w, tui.FormatFrame(df))
	}

	if errors.Is(stopErr, core.ErrStopTimeout) {
		return stopErr
	}
	if st.State == session.Failed && st.LastError != nil {
		return st.LastError
	}
	return nil
}
