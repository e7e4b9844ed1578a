// Command z1ctl is the cluster controller CLI (§2, §4.F, §4.J): discover,
// deploy, start, stop, and status subcommands issued against compute
// nodes over the matrix bus.
//
// z1ctl and the nodes it controls must share one bus.Medium to exchange
// anything: the matrix bus is modeled as synchronous in-process calls
// between *bus.Engine values (see bus/engine.go's package doc), not a
// real inter-board wire. z1ctl therefore also spins up the target compute
// nodes themselves, in-process, as a simulated cluster it then drives -
// the same "simulate the whole cluster to exercise the protocol"
// structure a hardware-protocol test harness would use. Driving physically
// separate z1node processes over a real matrix bus would need the bus PHY
// decoded from real GPIO edges rather than Medium's pointer dispatch; see
// DESIGN.md.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/neurofab/z1cluster/bus"
	"github.com/neurofab/z1cluster/config"
	"github.com/neurofab/z1cluster/controller"
	"github.com/neurofab/z1cluster/dispatch"
	"github.com/neurofab/z1cluster/hal"
	"github.com/neurofab/z1cluster/mesh"
	"github.com/neurofab/z1cluster/node"
	"github.com/neurofab/z1cluster/proto"
	"github.com/neurofab/z1cluster/tablegen"
	"github.com/neurofab/z1cluster/transport"
)

// cluster is the in-process simulated compute-node fleet plus its
// controller, all sharing one bus.Medium.
type cluster struct {
	controller *controller.Controller
	nodes      map[uint8]*node.Node
	stop       chan struct{}
}

func newCluster(nodeCount int) *cluster {
	medium := bus.NewMedium()
	clock := hal.NewSystemClock()
	logger := hal.NoopLogger()

	nodes := make(map[uint8]*node.Node, nodeCount)
	for id := 0; id < nodeCount; id++ {
		cfg := config.Default()
		cfg.NodeID = uint8(id)
		n := node.New(cfg, node.Deps{
			Medium: medium,
			PSRAM:  hal.NewSimPSRAM(hal.MinPSRAMSize),
			Clock:  clock,
			LEDs:   dispatch.LEDPins{Green: hal.NewSimPin(), Red: hal.NewSimPin(), Blue: hal.NewSimPin()},
			Logger: logger,
		})
		_ = n.Engine.Init()
		nodes[uint8(id)] = n
	}

	c := controller.New(medium, hal.BusPins{}, bus.DefaultConfig(), mesh.DefaultConfig(), transport.DefaultConfig(), clock, logger)

	cl := &cluster{controller: c, nodes: nodes, stop: make(chan struct{})}
	for _, n := range nodes {
		go cl.runNode(n)
	}
	return cl
}

func (cl *cluster) runNode(n *node.Node) {
	for {
		select {
		case <-cl.stop:
			return
		default:
			n.Tick()
			time.Sleep(time.Millisecond)
		}
	}
}

func (cl *cluster) close() { close(cl.stop) }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var nodeCount int

	root := &cobra.Command{
		Use:   "z1ctl",
		Short: "Control a simulated neuromorphic compute cluster",
	}
	root.PersistentFlags().IntVar(&nodeCount, "nodes", proto.MaxComputeNodeID+1, "number of simulated compute nodes to run")

	root.AddCommand(
		newDiscoverCmd(&nodeCount),
		newDeployCmd(&nodeCount),
		newStartCmd(&nodeCount),
		newStopCmd(&nodeCount),
		newStatusCmd(&nodeCount),
	)
	return root
}

func newDiscoverCmd(nodeCount *int) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Ping every compute node address and report which answered",
		RunE: func(cmd *cobra.Command, args []string) error {
			requestID := uuid.New()
			cl := newCluster(*nodeCount)
			defer cl.close()

			found := cl.controller.Discover()
			fmt.Fprintf(cmd.OutOrStdout(), "discover %s: found %v\n", requestID, found)
			return nil
		},
	}
}

func newDeployCmd(nodeCount *int) *cobra.Command {
	var (
		target     uint8
		networkYML string
	)
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Compile and stage a neuron table onto a target node",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(networkYML)
			if err != nil {
				return err
			}
			net, err := tablegen.Parse(data)
			if err != nil {
				return err
			}

			cl := newCluster(*nodeCount)
			defer cl.close()

			if err := cl.controller.Deploy(target, net); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deployed %d neurons to node %d\n", len(net.Neurons), target)
			return nil
		},
	}
	cmd.Flags().Uint8Var(&target, "target", 0, "target compute node id")
	cmd.Flags().StringVar(&networkYML, "network", "", "path to a tablegen YAML network description")
	_ = cmd.MarkFlagRequired("network")
	return cmd
}

func newStartCmd(nodeCount *int) *cobra.Command {
	var target uint8
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the LIF engine on a target node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := newCluster(*nodeCount)
			defer cl.close()
			return cl.controller.Start(target)
		},
	}
	cmd.Flags().Uint8Var(&target, "target", 0, "target compute node id")
	return cmd
}

func newStopCmd(nodeCount *int) *cobra.Command {
	var target uint8
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the LIF engine on a target node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := newCluster(*nodeCount)
			defer cl.close()
			return cl.controller.Stop(target)
		},
	}
	cmd.Flags().Uint8Var(&target, "target", 0, "target compute node id")
	return cmd
}

func newStatusCmd(nodeCount *int) *cobra.Command {
	var target uint8
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Fetch and decode a target node's SNN_GET_STATUS reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := newCluster(*nodeCount)
			defer cl.close()

			payload, err := cl.controller.Status(target, 2*time.Second)
			if err != nil {
				return err
			}
			state, stepCount, spikesFired, lastStepUs := dispatch.DecodeStatusPayload(payload)
			fmt.Fprintf(cmd.OutOrStdout(), "node %d: state=%s steps=%d fired=%d last_step_us=%d\n",
				target, state, stepCount, spikesFired, lastStepUs)
			return nil
		},
	}
	cmd.Flags().Uint8Var(&target, "target", 0, "target compute node id")
	return cmd
}
