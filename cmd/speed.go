package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/s2onet/internal/throughput"
)

var speedCount int

var speedCmd = &cobra.Command{
	Use:   "speed",
	Short: "Show per-adapter throughput",
	Long: `Sample interface byte counters every throughput.interval and print
receive and transmit rates per adapter.

Examples:
  s2onet speed            # Until Ctrl+C
  s2onet speed -n 5       # Five samples`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s := throughput.New(cfg.Throughput)
		if err := runSpeed(ctx, s, speedCount, os.Stdout); err != nil {
			return fmt.Errorf("throughput sampling failed: %w", err)
		}
		return nil
	},
}

func init() {
	speedCmd.Flags().IntVarP(&speedCount, "count", "n", 0, "number of samples to print (0 = until interrupted)")
}

func runSpeed(ctx context.Context, s *throughput.Sampler, count int, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	printed := 0
	return s.Run(ctx, func(samples []throughput.Sample) {
		if count > 0 && printed >= count {
			return
		}
		for _, sample := range samples {
			fmt.Fprintf(w, "%-24s rx %12s  tx %12s\n",
				sample.Interface,
				throughput.FormatRate(sample.RxBytesPerSec),
				throughput.FormatRate(sample.TxBytesPerSec))
		}
		printed++
		if count > 0 && printed >= count {
			cancel()
		}
	})
}
