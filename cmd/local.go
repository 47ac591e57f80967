package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/keeferrourke/rhpman-sim/logger"
	"github.com/keeferrourke/rhpman-sim/node"
	"github.com/keeferrourke/rhpman-sim/rhpman"
)

var (
	localNodes       int
	localReplicators int
	localBasePort    int
	localTransport   string
	localInterval    time.Duration
	localConfig      = rhpman.DefaultConfig()
)

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Run several live nodes in one process",
	Long: `Start a group of nodes on consecutive local ports. Each node neighbors
every node started before it. The first --replicators nodes start as replica
holders and each save one item. Every status interval each node looks up the
next saved item in turn and prints a status line.

Examples:
  rhpman local --nodes=5 --replicators=1
  rhpman local --nodes=3 --transport=quic --base-port=6000`,
	RunE: runLocal,
}

func init() {
	rootCmd.AddCommand(localCmd)

	f := localCmd.Flags()
	f.IntVar(&localNodes, "nodes", 4, "Number of nodes")
	f.IntVar(&localReplicators, "replicators", 1, "Nodes that start replicating and own an item")
	f.IntVar(&localBasePort, "base-port", 50051, "Port of the first node")
	f.StringVarP(&localTransport, "transport", "t", node.DefaultTransport, "Network transport: grpc or quic")
	f.DurationVar(&localInterval, "status-interval", 15*time.Second, "Interval between lookup rounds and status lines")
	addEngineFlags(localCmd, &localConfig)
}

func runLocal(cmd *cobra.Command, args []string) error {
	logger.Init("", true)
	if err := logger.SetDebug(debug); err != nil {
		return err
	}
	if localNodes <= 0 || localReplicators < 0 || localReplicators > localNodes {
		return fmt.Errorf("need 0 <= replicators (%d) <= nodes (%d) and at least one node", localReplicators, localNodes)
	}
	if localInterval <= 0 {
		return fmt.Errorf("status interval must be positive")
	}

	m := node.NewManager(
		node.WithBasePort(localBasePort),
		node.WithTransport(localTransport),
		node.WithEngineConfig(localConfig),
	)
	defer func() {
		if err := m.StopAll(); err != nil {
			logger.Errorf("Error during shutdown: %v", err)
		}
	}()

	var items []uint64
	for i := 0; i < localNodes; i++ {
		role := rhpman.NonReplicating
		if i < localReplicators {
			role = rhpman.Replicating
		}
		n, err := m.CreateNodeWithRole(role)
		if err != nil {
			return err
		}
		if role == rhpman.Replicating {
			id := uint64(firstItemID + i)
			if _, err := n.Save(id, []byte(fmt.Sprintf("item %d", id))); err != nil {
				return err
			}
			items = append(items, id)
		}
	}
	for _, n := range m.GetNodes() {
		printBanner(n.GetConfig())
	}

	t := time.NewTicker(localInterval)
	defer t.Stop()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	round := 0
	for {
		select {
		case <-t.C:
			for i, n := range m.GetNodes() {
				if len(items) > 0 {
					id := items[(round+i)%len(items)]
					if err := n.Lookup(id); err != nil {
						logger.Errorf("lookup %d on %s: %v", id, n.GetConfig().Name, err)
					}
				}
				printStatus(n.Snapshot())
			}
			round++
		case <-sigChan:
			logger.Info("Shutting down...")
			return nil
		}
	}
}
