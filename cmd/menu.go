package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/s2onet/internal/controller"
	"firestige.xyz/s2onet/internal/tui"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Open the keyboard menu",
	Long: `Open a terminal menu to start and stop captures, show the session
status and browse decoded packets. Navigate with the arrow keys and enter.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := controller.New(cfg.Driver)
		defer c.Close()

		if err := tui.Run(tui.ControllerBackend{C: c, Capture: cfg.Capture}); err != nil {
			return fmt.Errorf("menu failed: %w", err)
		}
		return nil
	},
}
