package rhpman

import (
	"fmt"
	"time"
)

// Default configuration constants
const (
	DefaultForwardingThreshold       = 0.4
	DefaultCarryingThreshold         = 0.6
	DefaultNeighborhoodHops          = 2
	DefaultElectionNeighborhoodHops  = 4
	DefaultProfileUpdateDelay        = 6 * time.Second
	DefaultPingCooldown              = time.Second
	DefaultRequestTimeout            = 10 * time.Second
	DefaultReplicationNodeTimeout    = 18 * time.Second
	DefaultProfileTimeout            = 18 * time.Second
	DefaultMissingReplicationTimeout = 30 * time.Second
	DefaultElectionTimeout           = 2 * time.Second
	DefaultElectionCooldown          = 10 * time.Second
	DefaultPrimaryCapacity           = 64
	DefaultTransitCapacity           = 32
	DefaultDegreeWindow              = 5
)

// Config holds the tunables of one engine
type Config struct {
	// Thresholds
	ForwardingThreshold float64 // σ: peers above it receive forwarded content and lookups
	CarryingThreshold   float64 // τ: a node above it keeps forwarded content in its transit buffer

	// Broadcast scopes
	NeighborhoodHops         uint32
	ElectionNeighborhoodHops uint32

	// Profile weights
	WeightChangeDegree float64
	WeightColocation   float64
	DegreeWindow       int // profile ticks averaged by ChangeDegree

	// Timing
	ProfileUpdateDelay        time.Duration
	PingCooldown              time.Duration
	RequestTimeout            time.Duration
	ReplicationNodeTimeout    time.Duration
	ProfileTimeout            time.Duration
	MissingReplicationTimeout time.Duration
	ElectionTimeout           time.Duration
	ElectionCooldown          time.Duration

	// Storage
	PrimaryCapacity int
	TransitCapacity int

	// InitialRole is the role taken at start. A node starting as Replicating
	// announces itself instead of running the initial election.
	InitialRole Role

	// SeenCapacity bounds the duplicate-suppression window; 0 keeps every
	// message identity for the lifetime of the engine.
	SeenCapacity int
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{
		ForwardingThreshold:       DefaultForwardingThreshold,
		CarryingThreshold:         DefaultCarryingThreshold,
		NeighborhoodHops:          DefaultNeighborhoodHops,
		ElectionNeighborhoodHops:  DefaultElectionNeighborhoodHops,
		WeightChangeDegree:        0.5,
		WeightColocation:          0.5,
		DegreeWindow:              DefaultDegreeWindow,
		ProfileUpdateDelay:        DefaultProfileUpdateDelay,
		PingCooldown:              DefaultPingCooldown,
		RequestTimeout:            DefaultRequestTimeout,
		ReplicationNodeTimeout:    DefaultReplicationNodeTimeout,
		ProfileTimeout:            DefaultProfileTimeout,
		MissingReplicationTimeout: DefaultMissingReplicationTimeout,
		ElectionTimeout:           DefaultElectionTimeout,
		ElectionCooldown:          DefaultElectionCooldown,
		PrimaryCapacity:           DefaultPrimaryCapacity,
		TransitCapacity:           DefaultTransitCapacity,
		InitialRole:               NonReplicating,
	}
}

// Validate checks if the config is valid
func (c Config) Validate() error {
	if c.ForwardingThreshold < 0 || c.ForwardingThreshold > 1 {
		return fmt.Errorf("forwarding threshold %v: %w", c.ForwardingThreshold, ErrInvalidThreshold)
	}
	if c.CarryingThreshold < 0 || c.CarryingThreshold > 1 {
		return fmt.Errorf("carrying threshold %v: %w", c.CarryingThreshold, ErrInvalidThreshold)
	}
	if c.WeightChangeDegree < 0 {
		return fmt.Errorf("change degree weight %v: %w", c.WeightChangeDegree, ErrInvalidWeight)
	}
	if c.WeightColocation < 0 {
		return fmt.Errorf("colocation weight %v: %w", c.WeightColocation, ErrInvalidWeight)
	}
	if c.NeighborhoodHops == 0 {
		return fmt.Errorf("neighborhood hops: %w", ErrInvalidHops)
	}
	if c.ElectionNeighborhoodHops == 0 {
		return fmt.Errorf("election neighborhood hops: %w", ErrInvalidHops)
	}
	if c.DegreeWindow <= 0 {
		return fmt.Errorf("degree window %d: %w", c.DegreeWindow, ErrInvalidCapacity)
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"profile update delay", c.ProfileUpdateDelay},
		{"request timeout", c.RequestTimeout},
		{"replication node timeout", c.ReplicationNodeTimeout},
		{"profile timeout", c.ProfileTimeout},
		{"missing replication timeout", c.MissingReplicationTimeout},
		{"election timeout", c.ElectionTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s %v: %w", d.name, d.d, ErrInvalidDuration)
		}
	}
	if c.PingCooldown < 0 {
		return fmt.Errorf("ping cooldown %v: %w", c.PingCooldown, ErrInvalidDuration)
	}
	if c.ElectionCooldown < 0 {
		return fmt.Errorf("election cooldown %v: %w", c.ElectionCooldown, ErrInvalidDuration)
	}
	if c.PrimaryCapacity < 0 {
		return fmt.Errorf("primary capacity %d: %w", c.PrimaryCapacity, ErrInvalidCapacity)
	}
	if c.TransitCapacity < 0 {
		return fmt.Errorf("transit capacity %d: %w", c.TransitCapacity, ErrInvalidCapacity)
	}
	if c.SeenCapacity < 0 {
		return fmt.Errorf("seen capacity %d: %w", c.SeenCapacity, ErrInvalidCapacity)
	}
	if c.InitialRole != NonReplicating && c.InitialRole != Replicating {
		return fmt.Errorf("initial role %d: %w", c.InitialRole, ErrInvalidRole)
	}
	return nil
}
