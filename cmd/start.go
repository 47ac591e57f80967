package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/keeferrourke/rhpman-sim/logger"
	"github.com/keeferrourke/rhpman-sim/node"
	"github.com/keeferrourke/rhpman-sim/rhpman"
	"github.com/keeferrourke/rhpman-sim/wire"
)

var (
	startConfig  = node.DefaultConfig(node.DefaultNodeName)
	startRole    string
	startSaves   []string
	startLookups []string
	lookupDelay  time.Duration
	statusEvery  time.Duration
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start an RHPMAN node",
	Long: `Start a protocol node listening on a gRPC or QUIC endpoint.

Neighbors are the endpoints this node can reach directly; frames for nodes
further away are relayed hop by hop.

Examples:
  # Start a replica holder that owns one item
  rhpman start --name=node-1 --port=50051 --role=replicating --save=1:hello

  # Start a second node next to it and look the item up
  rhpman start --name=node-2 --port=50052 --neighbors=127.0.0.1:50051 --lookup=1`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	// Server flags
	startCmd.Flags().StringVarP(&startConfig.Address, "address", "a", node.DefaultAddress, "Address to bind the server to")
	startCmd.Flags().StringVarP(&startConfig.Port, "port", "p", node.DefaultPort, "Port to bind the server to")
	startCmd.Flags().StringVarP(&startConfig.Name, "name", "n", node.DefaultNodeName, "Node name; the protocol address is derived from it")
	startCmd.Flags().StringVarP(&startConfig.Transport, "transport", "t", node.DefaultTransport, "Network transport: grpc or quic")

	// Peer flags
	startCmd.Flags().StringSliceVarP(&startConfig.Neighbors, "neighbors", "s", []string{}, "Directly reachable neighbor endpoints (comma-separated)")
	startCmd.Flags().Uint32Var(&startConfig.UnicastHops, "unicast-hops", startConfig.UnicastHops, "Hop limit of unicast floods")
	startCmd.Flags().DurationVar(&startConfig.SendTimeout, "send-timeout", startConfig.SendTimeout, "Timeout of a single frame delivery")

	// Protocol flags
	startCmd.Flags().StringVar(&startRole, "role", "non-replicating", "Initial role: replicating or non-replicating")
	addEngineFlags(startCmd, &startConfig.Engine)

	// Workload flags
	startCmd.Flags().StringSliceVar(&startSaves, "save", nil, "Items to save at start, as id:payload (comma-separated)")
	startCmd.Flags().StringSliceVar(&startLookups, "lookup", nil, "Content IDs to look up after --lookup-delay")
	startCmd.Flags().DurationVar(&lookupDelay, "lookup-delay", 5*time.Second, "Delay before the initial lookups")
	startCmd.Flags().DurationVar(&statusEvery, "status-interval", 30*time.Second, "Interval between status lines (0 disables)")
}

func runStart(cmd *cobra.Command, args []string) error {
	// Initialize logger for non-interactive mode (write to stdout)
	logger.Init("", true)
	if err := logger.SetDebug(debug); err != nil {
		return err
	}

	role, err := parseRole(startRole)
	if err != nil {
		return err
	}
	startConfig.Engine.InitialRole = role

	saves, err := parseSaves(startSaves)
	if err != nil {
		return err
	}
	lookupIDs, err := parseIDs(startLookups)
	if err != nil {
		return err
	}

	n, err := node.New(startConfig)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	n.OnLookup(
		func(item wire.ContentItem) {
			color.Green("lookup %d: %q (owner %s)", item.ID, item.Payload, item.Owner)
		},
		func(contentID uint64) {
			color.Red("lookup %d: not found", contentID)
		},
	)

	if err := n.Start(); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}
	printBanner(startConfig)

	for _, s := range saves {
		ok, err := n.Save(s.ID, s.Payload)
		if err != nil {
			logger.Errorf("save %d: %v", s.ID, err)
			continue
		}
		if !ok {
			logger.Warnf("save %d: primary store full", s.ID)
		}
	}

	var lookups <-chan time.Time
	if len(lookupIDs) > 0 {
		lookups = time.After(lookupDelay)
	}
	var status <-chan time.Time
	if statusEvery > 0 {
		t := time.NewTicker(statusEvery)
		defer t.Stop()
		status = t.C
	}

	// Wait for interrupt signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-lookups:
			for _, id := range lookupIDs {
				if err := n.Lookup(id); err != nil {
					logger.Errorf("lookup %d: %v", id, err)
				}
			}
		case <-status:
			printStatus(n.Snapshot())
		case <-sigChan:
			logger.Info("Shutting down...")
			if err := n.Stop(); err != nil {
				logger.Errorf("Error during shutdown: %v", err)
			}
			return nil
		}
	}
}

type savedItem struct {
	ID      uint64
	Payload []byte
}

// parseSaves reads "id:payload" pairs.
func parseSaves(specs []string) ([]savedItem, error) {
	items := make([]savedItem, 0, len(specs))
	for _, s := range specs {
		idStr, payload, _ := strings.Cut(s, ":")
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("save %q: invalid content id: %w", s, err)
		}
		items = append(items, savedItem{ID: id, Payload: []byte(payload)})
	}
	return items, nil
}

func parseIDs(specs []string) ([]uint64, error) {
	ids := make([]uint64, 0, len(specs))
	for _, s := range specs {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("lookup %q: invalid content id: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printBanner(cfg *node.Config) {
	title := color.New(color.FgCyan, color.Bold)
	label := color.New(color.FgHiBlack)
	title.Println("rhpman node")
	fmt.Printf("  %s %s\n", label.Sprint("name:     "), cfg.Name)
	fmt.Printf("  %s %s\n", label.Sprint("address:  "), cfg.Identity())
	fmt.Printf("  %s %s (%s)\n", label.Sprint("endpoint: "), cfg.GetAddress(), cfg.Transport)
	fmt.Printf("  %s %s\n", label.Sprint("role:     "), cfg.Engine.InitialRole)
	if len(cfg.Neighbors) > 0 {
		fmt.Printf("  %s %s\n", label.Sprint("neighbors:"), strings.Join(cfg.Neighbors, ", "))
	}
}

func printStatus(s node.Snapshot) {
	role := color.YellowString(s.Role.String())
	if s.Role == rhpman.Replicating {
		role = color.GreenString(s.Role.String())
	}
	fmt.Printf("%s %s profile=%.2f replicators=%d primary=%d transit=%d pending=%d sent=%d received=%d\n",
		color.CyanString("[%s]", s.Identity), role, s.Profile, len(s.Replicators),
		s.Primary, s.Transit, s.Pending, s.Stats.Sent, s.Stats.Received)
}
