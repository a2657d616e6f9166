package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nplabs/meshrouter/algo"
	"github.com/nplabs/meshrouter/cli"
	"github.com/nplabs/meshrouter/config"
	"github.com/nplabs/meshrouter/node"
	"github.com/nplabs/meshrouter/transport"
)

var (
	simTopoPath     string
	simAlgorithm    string
	simAttachNodeID string
)

var simulateCmd = &cobra.Command{
	Use:     "simulate",
	Short:   "Run every node in a topology in one process over an in-memory network",
	GroupID: "node",
	Long: `simulate starts one node.Node per entry in the topology file,
all wired through an in-process MemTransport switchboard instead of real
sockets. It's meant for local experimentation with convergence behavior
without standing up a ZeroMQ deployment (§8's scenario harness runs the
same way, from tests).`,
	Run: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVarP(&simTopoPath, "topo", "t", "", "topology config file (required)")
	simulateCmd.Flags().StringVarP(&simAlgorithm, "algorithm", "a", "lsr", "routing algorithm: flooding or lsr")
	simulateCmd.Flags().StringVarP(&simAttachNodeID, "attach", "A", "", "attach an interactive REPL to this node id")

	_ = simulateCmd.MarkFlagRequired("topo")
}

func runSimulate(cmd *cobra.Command, args []string) {
	logger := buildLogger("sim", "", false)

	topo, err := config.LoadTopology(simTopoPath)
	if err != nil {
		logger.Error("failed to load topology", "err", err)
		os.Exit(1)
	}

	net := transport.NewMemNetwork()
	nodes := make(map[string]*node.Node, len(topo))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for id, neighbors := range topo {
		tr := net.NewTransport(id, neighbors...)
		alg, err := buildAlgorithm(id, simAlgorithm)
		if err != nil {
			logger.Error("failed to build algorithm", "err", err)
			os.Exit(1)
		}
		for _, nb := range neighbors {
			alg.UpdateNeighbor(nb, algo.NeighborInfo{Cost: 1}, time.Now())
		}
		n := node.New(id, tr, alg, node.WithLogger(logger))
		nodes[id] = n
		go func() { _ = n.Run(ctx) }()
	}

	fmt.Fprintf(os.Stdout, "simulating %d nodes; press Ctrl+C to stop", len(nodes))

	if simAttachNodeID != "" {
		target, ok := nodes[simAttachNodeID]
		if !ok {
			logger.Error("attach target not found in topology", "id", simAttachNodeID)
			os.Exit(1)
		}
		session := cli.NewSession(target, topo, config.Names{}, os.Stdout)
		session.Run(os.Stdin)
		cancel()
		return
	}

	<-ctx.Done()
}
