package rhpman

import (
	"github.com/keeferrourke/rhpman-sim/storage"
	"github.com/keeferrourke/rhpman-sim/wire"
)

// receive is the transport hook. sender is the node that sent this copy,
// which differs from the envelope origin for forwarded messages.
func (e *Engine) receive(sender wire.Address, raw []byte) {
	if e.state != Running {
		return
	}
	e.stats.Received++

	env, err := wire.Decode(raw)
	if err != nil {
		e.stats.Malformed++
		e.log.Debugf("dropping datagram from %s: %v", sender, err)
		return
	}
	if env.Origin == e.self {
		return
	}
	if !e.seen.Add(messageKey{origin: env.Origin, id: env.ID}) {
		e.stats.Duplicates++
		return
	}

	switch m := env.Payload.(type) {
	case wire.Ping:
		e.handlePing(sender, m)
	case wire.ReplicaAnnounce:
		e.handleReplicaAnnounce(env.Origin)
	case wire.ModeChange:
		e.HandleModeChange(m.OldReplicator, m.NewReplicator)
	case wire.ElectionRequest:
		e.handleElectionRequest(env.Origin)
	case wire.ElectionFitness:
		e.handleElectionFitness(env.Origin, m.Fitness)
	case wire.Store:
		e.handleStore(sender, env, m, raw)
	case wire.LookupRequest:
		e.handleLookupRequest(sender, env, m, raw)
	case wire.LookupResponse:
		e.handleLookupResponse(m)
	case wire.Transfer:
		e.handleTransfer(env.Origin, m)
	}
}

func (e *Engine) handlePing(sender wire.Address, m wire.Ping) {
	e.profiles.Update(sender, m.DeliveryProbability)
	if m.DeliveryProbability >= 1 && e.replicators.Contains(sender) {
		e.replicators.Add(sender, true)
	}
}

func (e *Engine) handleReplicaAnnounce(from wire.Address) {
	e.armWatchdog()
	e.addReplicator(from, true)
}

func (e *Engine) handleElectionRequest(from wire.Address) {
	if e.RunElection() {
		e.log.Debugf("joined election requested by %s", from)
	}
}

func (e *Engine) handleElectionFitness(from wire.Address, fitness float64) {
	if !e.electing && !e.RunElection() {
		return
	}
	e.fitness[from] = fitness
}

func (e *Engine) handleStore(sender wire.Address, env wire.Envelope, m wire.Store, raw []byte) {
	item := m.Item
	if e.primary.Has(item.ID) || e.transit.Has(item.ID) {
		return
	}
	if e.role == Replicating {
		e.keep(e.primary, "primary store", item)
		return
	}
	e.forward(e.semiProbabilisticTargets(e.cfg.ForwardingThreshold, sender, env.Origin), raw)
	if e.CalculateProfile() > e.cfg.CarryingThreshold {
		e.keep(e.transit, "transit buffer", item)
	}
}

func (e *Engine) handleLookupRequest(sender wire.Address, env wire.Envelope, m wire.LookupRequest, raw []byte) {
	if item, ok := e.local(m.ContentID); ok {
		resp := e.newEnvelope(wire.LookupResponse{RequestID: env.ID, Item: item})
		e.unicastAll([]wire.Address{m.Requestor}, resp)
		return
	}

	var targets []wire.Address
	if e.role == Replicating {
		targets = e.replicators.Members()
	} else {
		threshold := e.cfg.ForwardingThreshold
		if m.Sigma > threshold {
			threshold = m.Sigma
		}
		targets = e.semiProbabilisticTargets(threshold)
	}
	targets = without(targets, e.self, sender, m.Requestor, env.Origin)
	e.forward(targets, raw)
}

func (e *Engine) handleLookupResponse(m wire.LookupResponse) {
	contentID, ok := e.pending[m.RequestID]
	if !ok || contentID != m.Item.ID {
		return
	}
	delete(e.pending, m.RequestID)
	e.lookups.Cancel(m.RequestID)
	e.succeed(m.Item)
}

func (e *Engine) handleTransfer(from wire.Address, m wire.Transfer) {
	target, name := e.transit, "transit buffer"
	if e.role == Replicating {
		target, name = e.primary, "primary store"
	}
	stored := 0
	for _, item := range m.Items {
		if e.primary.Has(item.ID) || e.transit.Has(item.ID) {
			continue
		}
		if !target.Store(item) {
			e.stats.DroppedFull++
			e.log.Debugf("%s full after %d of %d transferred items", name, stored, len(m.Items))
			break
		}
		stored++
	}
	e.stats.Stored += uint64(stored)
	e.log.Debugf("stored %d of %d items transferred by %s", stored, len(m.Items), from)
}

func (e *Engine) keep(s *storage.Store, name string, item wire.ContentItem) {
	if s.Store(item) {
		e.stats.Stored++
		return
	}
	e.stats.DroppedFull++
	e.log.Debugf("%s full, item %d not kept", name, item.ID)
}
