package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keeferrourke/rhpman-sim/rhpman"
)

// addEngineFlags binds the protocol tunables of cfg to c's flags.
func addEngineFlags(c *cobra.Command, cfg *rhpman.Config) {
	f := c.Flags()
	f.Float64Var(&cfg.ForwardingThreshold, "forwarding-threshold", cfg.ForwardingThreshold, "Profile above which peers receive forwarded content and lookups")
	f.Float64Var(&cfg.CarryingThreshold, "carrying-threshold", cfg.CarryingThreshold, "Profile above which a node carries content in its transit buffer")
	f.Uint32Var(&cfg.NeighborhoodHops, "neighborhood-hops", cfg.NeighborhoodHops, "Hop limit of pings and replica announcements")
	f.Uint32Var(&cfg.ElectionNeighborhoodHops, "election-hops", cfg.ElectionNeighborhoodHops, "Hop limit of election messages")
	f.Float64Var(&cfg.WeightChangeDegree, "weight-change-degree", cfg.WeightChangeDegree, "Profile weight of neighborhood stability")
	f.Float64Var(&cfg.WeightColocation, "weight-colocation", cfg.WeightColocation, "Profile weight of colocation with replica holders")
	f.IntVar(&cfg.DegreeWindow, "degree-window", cfg.DegreeWindow, "Profile ticks averaged when measuring neighborhood churn")
	f.DurationVar(&cfg.ProfileUpdateDelay, "profile-update-delay", cfg.ProfileUpdateDelay, "Interval between profile updates")
	f.DurationVar(&cfg.PingCooldown, "ping-cooldown", cfg.PingCooldown, "Minimum gap between two pings")
	f.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Time before a pending lookup fails")
	f.DurationVar(&cfg.ReplicationNodeTimeout, "replication-node-timeout", cfg.ReplicationNodeTimeout, "Time before a silent replica holder is forgotten")
	f.DurationVar(&cfg.ProfileTimeout, "profile-timeout", cfg.ProfileTimeout, "Time before a silent peer profile is forgotten")
	f.DurationVar(&cfg.MissingReplicationTimeout, "missing-replication-timeout", cfg.MissingReplicationTimeout, "Time without announcements before an election is forced")
	f.DurationVar(&cfg.ElectionTimeout, "election-timeout", cfg.ElectionTimeout, "Time an election collects fitness before deciding")
	f.DurationVar(&cfg.ElectionCooldown, "election-cooldown", cfg.ElectionCooldown, "Minimum gap between two elections")
	f.IntVar(&cfg.PrimaryCapacity, "primary-capacity", cfg.PrimaryCapacity, "Slots in the primary store")
	f.IntVar(&cfg.TransitCapacity, "transit-capacity", cfg.TransitCapacity, "Slots in the transit buffer")
	f.IntVar(&cfg.SeenCapacity, "seen-capacity", cfg.SeenCapacity, "Message identities remembered for duplicate suppression (0 = unbounded)")
}

func parseRole(s string) (rhpman.Role, error) {
	switch strings.ToLower(s) {
	case "", "non-replicating", "nonreplicating":
		return rhpman.NonReplicating, nil
	case "replicating":
		return rhpman.Replicating, nil
	}
	return 0, fmt.Errorf("role %q: %w", s, rhpman.ErrInvalidRole)
}
