package rhpman

import (
	"github.com/keeferrourke/rhpman-sim/wire"
)

// RunElection starts a round unless one is already running or the cooldown
// has not elapsed. It reports whether a round started.
func (e *Engine) RunElection() bool {
	if e.state != Running || e.electing {
		return false
	}
	now := e.sched.Now()
	if now.Before(e.minElectionTime) {
		e.log.Debugf("election suppressed until %s", e.minElectionTime.Format("15:04:05.000"))
		return false
	}

	e.electing = true
	e.minElectionTime = now.Add(e.cfg.ElectionCooldown)
	e.ownFitness = e.fitnessFn(e)
	e.stats.Elections++
	e.log.Infof("election started, fitness %.3f", e.ownFitness)

	e.broadcast(e.cfg.ElectionNeighborhoodHops, wire.ElectionRequest{})
	e.broadcast(e.cfg.ElectionNeighborhoodHops, wire.ElectionFitness{Fitness: e.ownFitness})
	e.timers.Schedule(keyElectionCheck, e.cfg.ElectionTimeout, e.CheckElectionResults)
	return true
}

// CheckElectionResults closes the current round. The node replicates iff
// no peer reported a strictly greater fitness.
func (e *Engine) CheckElectionResults() {
	if !e.electing {
		return
	}
	e.electing = false
	e.timers.Cancel(keyElectionCheck)

	win := true
	for peer, f := range e.fitness {
		if f > e.ownFitness {
			e.log.Debugf("outranked by %s (%.3f > %.3f)", peer, f, e.ownFitness)
			win = false
			break
		}
	}
	heard := len(e.fitness)
	e.fitness = make(map[wire.Address]float64)

	role := NonReplicating
	if win {
		role = Replicating
	}
	e.log.Infof("election finished with %d peers: %s", heard, role)
	e.ChangeRole(role)
}

// ChangeRole applies a new role and tells the election neighborhood.
func (e *Engine) ChangeRole(role Role) {
	if e.state != Running || role == e.role {
		return
	}
	e.role = role
	e.log.Infof("role changed to %s", role)

	switch role {
	case Replicating:
		e.timers.Cancel(keyWatchdog)
		e.absorbTransit()
		e.broadcast(e.cfg.ElectionNeighborhoodHops, wire.ModeChange{OldReplicator: e.self, NewReplicator: e.self})
		e.announce()
		e.timers.Repeat(keyAnnounce, e.cfg.ProfileUpdateDelay, e.announce)
	case NonReplicating:
		e.timers.Cancel(keyAnnounce)
		e.broadcast(e.cfg.ElectionNeighborhoodHops, wire.ModeChange{OldReplicator: e.self, NewReplicator: wire.NoAddress})
		e.armWatchdog()
	}
	e.ping(true)
}

// HandleModeChange applies a peer's role change to the replicator set.
func (e *Engine) HandleModeChange(oldReplicator, newReplicator wire.Address) {
	switch {
	case oldReplicator == newReplicator:
		e.addReplicator(newReplicator, false)
	case newReplicator == wire.NoAddress:
		if e.replicators.Remove(oldReplicator) {
			e.log.Debugf("replicator %s stepped down", oldReplicator)
		}
	default:
		e.addReplicator(newReplicator, false)
		e.replicators.Remove(oldReplicator)
	}
}

func (e *Engine) addReplicator(addr wire.Address, near bool) {
	if addr == wire.NoAddress || addr == e.self {
		return
	}
	if e.replicators.Add(addr, near) {
		e.log.Debugf("learned replicator %s", addr)
		e.drainTransit(addr)
	}
}

// absorbTransit moves carried items into the primary store.
func (e *Engine) absorbTransit() {
	for _, item := range e.transit.All() {
		if e.primary.Store(item) {
			e.transit.Remove(item.ID)
			continue
		}
		e.stats.DroppedFull++
		e.log.Debugf("primary store full, dropping carried item %d", item.ID)
	}
	e.transit.Clear()
}

// drainTransit hands the transit buffer to a newly learned replicator. The
// items stay put when the send fails.
func (e *Engine) drainTransit(to wire.Address) {
	if e.role == Replicating || e.transit.Len() == 0 {
		return
	}
	items := e.transit.All()
	if err := e.unicast(to, e.newEnvelope(wire.Transfer{Items: items})); err != nil {
		e.log.Debugf("keeping %d carried items, handoff to %s failed: %v", len(items), to, err)
		return
	}
	e.transit.Clear()
	e.log.Debugf("handed %d carried items to %s", len(items), to)
}

// armWatchdog (re)starts the missing-replication watchdog.
func (e *Engine) armWatchdog() {
	if e.role == Replicating {
		return
	}
	e.timers.Repeat(keyWatchdog, e.cfg.MissingReplicationTimeout, func() {
		if e.state != Running {
			return
		}
		e.log.Debugf("no replicator heard for %s", e.cfg.MissingReplicationTimeout)
		e.electIfOrphaned()
	})
}

func (e *Engine) electIfOrphaned() {
	if e.role == NonReplicating && e.replicators.Len() == 0 {
		e.RunElection()
	}
}

func (e *Engine) replicatorsEmptied() {
	if e.state != Running {
		return
	}
	e.timers.Schedule(keyElectionRetry, 0, func() {
		if e.replicators.Len() == 0 {
			e.RunElection()
		}
	})
}
