package rhpman_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keeferrourke/rhpman-sim/rhpman"
	"github.com/keeferrourke/rhpman-sim/timer"
	"github.com/keeferrourke/rhpman-sim/transport"
	"github.com/keeferrourke/rhpman-sim/wire"
)

type harness struct {
	t   *testing.T
	sim *timer.Sim
	net *transport.MemNet
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sim := timer.NewSim(time.Unix(1_700_000_000, 0))
	return &harness{t: t, sim: sim, net: transport.NewMemNet(sim)}
}

type recorder struct {
	successes []wire.ContentItem
	failures  []uint64
}

func (h *harness) engine(addr wire.Address, cfg rhpman.Config, opts ...rhpman.Option) (*rhpman.Engine, *recorder) {
	h.t.Helper()
	e, err := rhpman.New(cfg, h.net.Endpoint(addr), h.sim, opts...)
	require.NoError(h.t, err)
	rec := &recorder{}
	e.SetOnLookupSuccess(func(item wire.ContentItem) { rec.successes = append(rec.successes, item) })
	e.SetOnLookupFailure(func(id uint64) { rec.failures = append(rec.failures, id) })
	require.NoError(h.t, e.Start())
	return e, rec
}

// stub is a bare endpoint that speaks the wire protocol by hand.
type stub struct {
	t      *testing.T
	ep     *transport.MemEndpoint
	nextID uint64
	got    []wire.Envelope
}

func (h *harness) stub(addr wire.Address) *stub {
	h.t.Helper()
	p := &stub{t: h.t, ep: h.net.Endpoint(addr)}
	p.ep.SetReceiver(func(_ wire.Address, raw []byte) {
		env, err := wire.Decode(raw)
		require.NoError(h.t, err)
		p.got = append(p.got, env)
	})
	require.NoError(h.t, p.ep.Open())
	return p
}

func (p *stub) envelope(m wire.Message) wire.Envelope {
	p.nextID++
	return wire.Envelope{ID: p.nextID, Origin: p.ep.LocalAddress(), Payload: m}
}

func (p *stub) send(dest wire.Address, m wire.Message) wire.Envelope {
	env := p.envelope(m)
	p.sendEnvelope(dest, env)
	return env
}

func (p *stub) sendEnvelope(dest wire.Address, env wire.Envelope) {
	raw, err := wire.Encode(env)
	require.NoError(p.t, err)
	require.NoError(p.t, p.ep.Unicast(dest, raw))
}

func (p *stub) received(kind wire.Kind) []wire.Envelope {
	var out []wire.Envelope
	for _, env := range p.got {
		if env.Payload.Kind() == kind {
			out = append(out, env)
		}
	}
	return out
}

func testConfig() rhpman.Config {
	return rhpman.DefaultConfig()
}

func item(id uint64, owner wire.Address) wire.ContentItem {
	return wire.NewContentItem(id, owner, []byte("payload"))
}
