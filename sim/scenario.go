package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keeferrourke/rhpman-sim/logger"
	"github.com/keeferrourke/rhpman-sim/rhpman"
	"github.com/keeferrourke/rhpman-sim/wire"
)

var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario describes one simulation run.
type Scenario struct {
	Seed              uint64
	Nodes             int
	NodesPerPartition int
	DataOwnersPercent float64 // share of nodes that start replicating and own one item
	Runtime           time.Duration
	BridgeInterval    time.Duration // how often inter-partition links are redrawn; 0 keeps partitions apart
	LookupInterval    time.Duration
	LossRate          float64
	Delay             time.Duration
	Engine            rhpman.Config
}

// DefaultScenario returns a small partitioned run.
func DefaultScenario() Scenario {
	return Scenario{
		Seed:              1,
		Nodes:             12,
		NodesPerPartition: 4,
		DataOwnersPercent: 25,
		Runtime:           5 * time.Minute,
		BridgeInterval:    20 * time.Second,
		LookupInterval:    15 * time.Second,
		Delay:             5 * time.Millisecond,
		Engine:            rhpman.DefaultConfig(),
	}
}

// Validate checks if the scenario is runnable
func (s Scenario) Validate() error {
	switch {
	case s.Nodes <= 0:
		return fmt.Errorf("%w: need at least one node", ErrInvalidScenario)
	case s.NodesPerPartition <= 0:
		return fmt.Errorf("%w: nodes per partition must be positive", ErrInvalidScenario)
	case s.DataOwnersPercent < 0 || s.DataOwnersPercent > 100:
		return fmt.Errorf("%w: data owners percent %v", ErrInvalidScenario, s.DataOwnersPercent)
	case s.Runtime <= 0:
		return fmt.Errorf("%w: runtime must be positive", ErrInvalidScenario)
	case s.LookupInterval <= 0:
		return fmt.Errorf("%w: lookup interval must be positive", ErrInvalidScenario)
	case s.BridgeInterval < 0:
		return fmt.Errorf("%w: bridge interval must not be negative", ErrInvalidScenario)
	case s.LossRate < 0 || s.LossRate >= 1:
		return fmt.Errorf("%w: loss rate %v", ErrInvalidScenario, s.LossRate)
	}
	if err := s.Engine.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	return nil
}

// Result summarizes a run. Every lookup is counted exactly once as a
// success or a failure.
type Result struct {
	RunID       string
	Lookups     int
	Successes   int
	Failures    int
	Replicators int
	Elections   uint64
	Delivered   uint64
	Lost        uint64
}

// SuccessRate returns the share of lookups that succeeded.
func (r Result) SuccessRate() float64 {
	if r.Lookups == 0 {
		return 0
	}
	return float64(r.Successes) / float64(r.Lookups)
}

// Run executes the scenario to completion.
func Run(s Scenario) (Result, error) {
	if err := s.Validate(); err != nil {
		return Result{}, err
	}
	res := Result{RunID: uuid.NewString()}
	logger.Infof("[sim] run %s: %d nodes, %d per partition, seed %d", res.RunID, s.Nodes, s.NodesPerPartition, s.Seed)

	c := NewCluster(ClusterOptions{
		Seed:              s.Seed,
		NodesPerPartition: s.NodesPerPartition,
		LossRate:          s.LossRate,
		Delay:             s.Delay,
		Engine:            s.Engine,
	})

	owners := int(float64(s.Nodes)*s.DataOwnersPercent/100 + 0.5)
	isOwner := make(map[int]bool, owners)
	for _, i := range c.rng.Perm(s.Nodes)[:owners] {
		isOwner[i] = true
	}

	// Owners start last so the ModeChange they broadcast reaches every
	// node already listening.
	slots := make([]wire.Address, s.Nodes)
	for pass := 0; pass < 2; pass++ {
		for i := 0; i < s.Nodes; i++ {
			if isOwner[i] != (pass == 1) {
				continue
			}
			role := rhpman.NonReplicating
			if isOwner[i] {
				role = rhpman.Replicating
			}
			m, err := c.addAt(uint32(i+1), role)
			if err != nil {
				return Result{}, err
			}
			slots[i] = m.Addr
		}
	}
	c.next = uint32(s.Nodes)

	var items []uint64
	for i := 0; i < s.Nodes; i++ {
		if !isOwner[i] {
			continue
		}
		m, _ := c.Member(slots[i])
		id := uint64(1000 + i)
		m.Engine.Save(wire.NewContentItem(id, m.Addr, []byte(fmt.Sprintf("item-%d", id))))
		items = append(items, id)
	}

	if s.BridgeInterval > 0 {
		c.Rebridge()
	}
	var elapsed time.Duration
	nextLookup, nextBridge := s.LookupInterval, s.BridgeInterval
	for elapsed < s.Runtime {
		target := nextLookup
		if s.BridgeInterval > 0 && nextBridge < target {
			target = nextBridge
		}
		if target > s.Runtime {
			target = s.Runtime
		}
		c.Step(target - elapsed)
		elapsed = target

		if s.BridgeInterval > 0 && elapsed == nextBridge {
			c.Rebridge()
			nextBridge += s.BridgeInterval
		}
		if elapsed == nextLookup {
			nextLookup += s.LookupInterval
			if elapsed == s.Runtime || len(items) == 0 {
				continue
			}
			for _, m := range c.Members() {
				id := items[c.rng.IntN(len(items))]
				if m.Engine.Lookup(id) == nil {
					res.Lookups++
				}
			}
		}
	}

	c.Step(s.Engine.RequestTimeout)
	res.Replicators = len(c.Replicators())
	for _, m := range c.Members() {
		res.Elections += m.Engine.Stats().Elections
	}
	c.StopAll()

	for _, m := range c.Members() {
		res.Successes += m.Successes
		res.Failures += m.Failures
	}
	stats := c.Network().Stats()
	res.Delivered, res.Lost = stats.Delivered, stats.Lost
	logger.Infof("[sim] run %s: %d lookups, %d succeeded, %d failed, %d replicators",
		res.RunID, res.Lookups, res.Successes, res.Failures, res.Replicators)
	return res, nil
}
