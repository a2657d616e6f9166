package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/cobra"

	"github.com/nplabs/meshrouter/algo"
	"github.com/nplabs/meshrouter/cli"
	"github.com/nplabs/meshrouter/config"
	"github.com/nplabs/meshrouter/node"
	"github.com/nplabs/meshrouter/transport"
)

var (
	flagID        string
	flagAlgorithm string
	flagTopoPath  string
	flagNamesPath string
	flagLogPath   string
	flagVerbose   bool
)

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Run a single node against a declared topology over ZeroMQ",
	GroupID: "node",
	Run:     runNode,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&flagID, "id", "i", "", "this node's id (required)")
	runCmd.Flags().StringVarP(&flagAlgorithm, "algorithm", "a", "lsr", "routing algorithm: flooding or lsr")
	runCmd.Flags().StringVarP(&flagTopoPath, "topo", "t", "", "topology config file (required)")
	runCmd.Flags().StringVarP(&flagNamesPath, "names", "n", "", "node address config file (required)")
	runCmd.Flags().StringVar(&flagLogPath, "log-path", "", "optional packet log file path")
	runCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose (debug-level) logging")

	_ = runCmd.MarkFlagRequired("id")
	_ = runCmd.MarkFlagRequired("topo")
	_ = runCmd.MarkFlagRequired("names")
}

func buildLogger(nodeID, logPath string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handlers := []slog.Handler{
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        level,
			AddSource:    false,
			CustomPrefix: nodeID,
		}),
	}
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
		if err == nil {
			handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
		}
	}
	return slog.New(slogmulti.Fanout(handlers...))
}

func buildAlgorithm(id, name string) (algo.Algorithm, error) {
	switch name {
	case "flooding":
		return algo.NewFlooding(id), nil
	case "lsr":
		return algo.NewLSR(id), nil
	default:
		return nil, fmt.Errorf("unknown algorithm %q (want flooding or lsr)", name)
	}
}

func runNode(cmd *cobra.Command, args []string) {
	logger := buildLogger(flagID, flagLogPath, flagVerbose)

	topo, err := config.LoadTopology(flagTopoPath)
	if err != nil {
		logger.Error("failed to load topology", "err", err)
		os.Exit(1)
	}
	names, err := config.LoadNames(flagNamesPath)
	if err != nil {
		logger.Error("failed to load names", "err", err)
		os.Exit(1)
	}
	self, ok := names[flagID]
	if !ok {
		logger.Error("this node has no entry in the names file", "id", flagID)
		os.Exit(1)
	}

	neighbors := topo.NeighborsOf(flagID)
	endpoints, err := config.NeighborAddresses(names, neighbors)
	if err != nil {
		logger.Error("failed to resolve neighbor addresses", "err", err)
		os.Exit(1)
	}

	alg, err := buildAlgorithm(flagID, flagAlgorithm)
	if err != nil {
		logger.Error("failed to build algorithm", "err", err)
		os.Exit(1)
	}
	for _, n := range neighbors {
		alg.UpdateNeighbor(n, algo.NeighborInfo{Cost: 1}, time.Now())
	}

	bind := fmt.Sprintf("tcp://0.0.0.0:%d", self.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr, err := transport.NewZMQTransport(ctx, flagID, bind, endpoints)
	if err != nil {
		logger.Error("failed to start transport", "err", err)
		os.Exit(1)
	}
	defer tr.Close()

	n := node.New(flagID, tr, alg, node.WithLogger(logger))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down", "id", flagID)
		cancel()
	}()

	go func() {
		_ = n.Run(ctx)
	}()

	session := cli.NewSession(n, topo, names, os.Stdout)
	session.Run(os.Stdin)
	cancel()
}
