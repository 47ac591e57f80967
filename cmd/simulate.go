package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/keeferrourke/rhpman-sim/logger"
	"github.com/keeferrourke/rhpman-sim/sim"
)

var scenario = sim.DefaultScenario()

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a seeded simulation of a partitioned network",
	Long: `Run a deterministic simulation on a virtual clock. Nodes are split into
partitions that are fully connected inside; every bridge interval one random
link is drawn between each pair of adjacent partitions with probability one
half. Data owners start as replica holders and save one item each, and every
node periodically looks up a random owned item.

The same seed always replays the same run.

Examples:
  rhpman simulate --seed=7 --nodes=20 --nodes-per-partition=5
  rhpman simulate --runtime=10m --loss=0.05 --data-owners=10`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	f := simulateCmd.Flags()
	f.Uint64Var(&scenario.Seed, "seed", scenario.Seed, "Random seed")
	f.IntVar(&scenario.Nodes, "nodes", scenario.Nodes, "Total number of nodes")
	f.IntVar(&scenario.NodesPerPartition, "nodes-per-partition", scenario.NodesPerPartition, "Nodes in each partition")
	f.Float64Var(&scenario.DataOwnersPercent, "data-owners", scenario.DataOwnersPercent, "Percent of nodes that own an item and start replicating")
	f.DurationVar(&scenario.Runtime, "runtime", scenario.Runtime, "Virtual time to simulate")
	f.DurationVar(&scenario.BridgeInterval, "bridge-interval", scenario.BridgeInterval, "Interval between redrawing inter-partition links (0 keeps partitions apart)")
	f.DurationVar(&scenario.LookupInterval, "lookup-interval", scenario.LookupInterval, "Interval between lookup rounds")
	f.Float64Var(&scenario.LossRate, "loss", scenario.LossRate, "Probability that a delivery is lost")
	f.DurationVar(&scenario.Delay, "delay", scenario.Delay, "Per-delivery latency")
	addEngineFlags(simulateCmd, &scenario.Engine)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	logger.Init("", debug)
	if err := logger.SetDebug(debug); err != nil {
		return err
	}

	res, err := sim.Run(scenario)
	if err != nil {
		return err
	}

	label := color.New(color.FgHiBlack)
	color.New(color.FgCyan, color.Bold).Printf("run %s\n", res.RunID)
	fmt.Printf("  %s %d nodes, %d per partition, seed %d\n", label.Sprint("network:    "), scenario.Nodes, scenario.NodesPerPartition, scenario.Seed)
	fmt.Printf("  %s %d\n", label.Sprint("lookups:    "), res.Lookups)
	fmt.Printf("  %s %s\n", label.Sprint("successes:  "), color.GreenString("%d", res.Successes))
	fmt.Printf("  %s %s\n", label.Sprint("failures:   "), color.RedString("%d", res.Failures))
	fmt.Printf("  %s %.1f%%\n", label.Sprint("success:    "), 100*res.SuccessRate())
	fmt.Printf("  %s %d\n", label.Sprint("replicators:"), res.Replicators)
	fmt.Printf("  %s %d\n", label.Sprint("elections:  "), res.Elections)
	fmt.Printf("  %s %d delivered, %d lost\n", label.Sprint("frames:     "), res.Delivered, res.Lost)
	return nil
}
