package rhpman

import (
	"sort"

	"github.com/keeferrourke/rhpman-sim/wire"
)

func (e *Engine) newEnvelope(m wire.Message) wire.Envelope {
	e.nextID++
	return wire.Envelope{
		ID:              e.nextID,
		Origin:          e.self,
		TimestampMillis: e.sched.Now().UnixMilli(),
		Payload:         m,
	}
}

func (e *Engine) encode(env wire.Envelope) ([]byte, bool) {
	raw, err := wire.Encode(env)
	if err != nil {
		e.log.Errorf("encoding %s: %v", env.Payload.Kind(), err)
		return nil, false
	}
	return raw, true
}

func (e *Engine) broadcast(hops uint32, m wire.Message) {
	raw, ok := e.encode(e.newEnvelope(m))
	if !ok {
		return
	}
	e.stats.Sent++
	if err := e.tr.Broadcast(hops, raw); err != nil {
		e.stats.SendErrors++
		e.log.Warnf("broadcast %s: %v", m.Kind(), err)
	}
}

func (e *Engine) unicastAll(dests []wire.Address, env wire.Envelope) {
	if len(dests) == 0 {
		return
	}
	raw, ok := e.encode(env)
	if !ok {
		return
	}
	e.forward(dests, raw)
}

// unicast sends env to one destination and reports the transport error.
func (e *Engine) unicast(dest wire.Address, env wire.Envelope) error {
	raw, err := wire.Encode(env)
	if err != nil {
		e.log.Errorf("encoding %s: %v", env.Payload.Kind(), err)
		return err
	}
	e.stats.Sent++
	if err := e.tr.Unicast(dest, raw); err != nil {
		e.stats.SendErrors++
		return err
	}
	return nil
}

// forward sends an already encoded envelope, keeping its identity so that
// receivers deduplicate every copy of the flood.
func (e *Engine) forward(dests []wire.Address, raw []byte) {
	for _, dest := range dests {
		e.stats.Sent++
		if err := e.tr.Unicast(dest, raw); err != nil {
			e.stats.SendErrors++
			e.log.Debugf("unicast to %s: %v", dest, err)
		}
	}
}

// semiProbabilisticTargets returns every known replicator plus every peer
// whose advertised profile exceeds threshold, without self and exclude.
func (e *Engine) semiProbabilisticTargets(threshold float64, exclude ...wire.Address) []wire.Address {
	skip := map[wire.Address]struct{}{e.self: {}, wire.NoAddress: {}}
	for _, a := range exclude {
		skip[a] = struct{}{}
	}
	set := make(map[wire.Address]struct{})
	for _, a := range e.replicators.Members() {
		set[a] = struct{}{}
	}
	for _, a := range e.profiles.Above(threshold, false) {
		set[a] = struct{}{}
	}
	out := make([]wire.Address, 0, len(set))
	for a := range set {
		if _, ok := skip[a]; !ok {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func without(addrs []wire.Address, exclude ...wire.Address) []wire.Address {
	out := addrs[:0:0]
	for _, a := range addrs {
		keep := true
		for _, x := range exclude {
			if a == x {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, a)
		}
	}
	return out
}
