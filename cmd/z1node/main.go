// Command z1node runs one compute node's cooperative foreground loop
// (§5): a fixed number of Tick calls against a simulated PSRAM/bus medium,
// or a single long-running node (--ticks 0) for use as a real bring-up
// target once wired to hal/rpiogpio pins.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/neurofab/z1cluster/bus"
	"github.com/neurofab/z1cluster/config"
	"github.com/neurofab/z1cluster/dispatch"
	"github.com/neurofab/z1cluster/hal"
	"github.com/neurofab/z1cluster/node"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		nodeID     uint8
		ticks      int
		tickDelay  time.Duration
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "z1node",
		Short: "Run one compute node's foreground loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := hal.NoopLogger()
			if verbose {
				z, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				defer z.Sync() //nolint:errcheck
				logger = hal.NewLogger(z)
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg.NodeID = nodeID

			n := node.New(cfg, node.Deps{
				Medium: bus.NewMedium(),
				PSRAM:  hal.NewSimPSRAM(hal.MinPSRAMSize),
				Clock:  hal.NewSystemClock(),
				LEDs:   dispatch.LEDPins{Green: hal.NewSimPin(), Red: hal.NewSimPin(), Blue: hal.NewSimPin()},
				Logger: logger,
			})

			if err := n.Engine.Init(); err != nil {
				return err
			}

			if ticks <= 0 {
				for {
					n.Tick()
					time.Sleep(tickDelay)
				}
			}
			for i := 0; i < ticks; i++ {
				n.Tick()
				time.Sleep(tickDelay)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "node.toml", "path to the node's boot-tunable TOML file")
	cmd.Flags().Uint8Var(&nodeID, "node-id", 0, "this node's bus address (0-15)")
	cmd.Flags().IntVar(&ticks, "ticks", 0, "number of foreground ticks to run (0 = run forever)")
	cmd.Flags().DurationVar(&tickDelay, "tick-delay", time.Millisecond, "delay between foreground ticks")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "enable development logging")
	return cmd
}
