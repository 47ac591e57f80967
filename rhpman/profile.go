package rhpman

import "github.com/keeferrourke/rhpman-sim/wire"

// CalculateProfile returns the node's delivery probability in [0, 1]. A
// replicating node always reports 1.
func (e *Engine) CalculateProfile() float64 {
	if e.role == Replicating {
		return 1.0
	}
	p := e.cfg.WeightChangeDegree*e.ChangeDegree() + e.cfg.WeightColocation*e.Colocation()
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// ChangeDegree is the mean neighbor churn over the last DegreeWindow
// profile ticks. Each sample is |previous Δ current| / |previous ∪ current|.
func (e *Engine) ChangeDegree() float64 {
	if len(e.churn) == 0 {
		return 0
	}
	var sum float64
	for _, c := range e.churn {
		sum += c
	}
	return sum / float64(len(e.churn))
}

// Colocation is 1 when a replicator has been heard within the
// neighborhood radius, 0 otherwise.
func (e *Engine) Colocation() float64 {
	if e.replicators.AnyNear() {
		return 1
	}
	return 0
}

// CalculateElectionFitness favors nodes with many stable neighbors and room
// in their primary store.
func (e *Engine) CalculateElectionFitness() float64 {
	neighbors := float64(e.profiles.Len())
	fitness := neighbors * (1 - e.ChangeDegree())
	if c := e.primary.Capacity(); c > 0 {
		fitness += float64(e.primary.FreeSpace()) / float64(c)
	}
	return fitness
}

// sampleNeighbors records one churn sample. The first tick only sets the
// baseline.
func (e *Engine) sampleNeighbors() {
	current := make(map[wire.Address]struct{})
	for _, a := range e.profiles.Addresses() {
		current[a] = struct{}{}
	}
	if e.lastNeighbors == nil {
		e.lastNeighbors = current
		return
	}

	union, diff := 0, 0
	for a := range current {
		union++
		if _, ok := e.lastNeighbors[a]; !ok {
			diff++
		}
	}
	for a := range e.lastNeighbors {
		if _, ok := current[a]; !ok {
			union++
			diff++
		}
	}
	sample := 0.0
	if union > 0 {
		sample = float64(diff) / float64(union)
	}
	e.churn = append(e.churn, sample)
	if len(e.churn) > e.cfg.DegreeWindow {
		e.churn = e.churn[len(e.churn)-e.cfg.DegreeWindow:]
	}
	e.lastNeighbors = current
}

func (e *Engine) profileTick() {
	if e.state != Running {
		return
	}
	e.sampleNeighbors()
	e.ping(false)
}

// ping advertises the current profile. Unless forced it is rate limited
// to one per PingCooldown.
func (e *Engine) ping(force bool) {
	now := e.sched.Now()
	if !force && !e.lastPing.IsZero() && now.Sub(e.lastPing) < e.cfg.PingCooldown {
		return
	}
	e.lastPing = now
	e.broadcast(e.cfg.NeighborhoodHops, wire.Ping{DeliveryProbability: e.CalculateProfile()})
}

func (e *Engine) announce() {
	if e.state != Running || e.role != Replicating {
		return
	}
	e.broadcast(e.cfg.NeighborhoodHops, wire.ReplicaAnnounce{})
}
