// Package transport moves encoded envelopes between engines.
//
// The engine only needs an addressable unicast, a hop-scoped broadcast and
// a receive hook. Delivery is best effort everywhere: datagrams may be
// lost, duplicated by relays or reordered, and senders never wait for an
// answer.
//
//	MemNet - in-process network over an explicit link graph; used by the
//	         simulator and by tests.
//	GRPC   - one unary Deliver call per frame between neighbors.
//	QUIC   - one stream per frame between neighbors.
//
// Both network transports share a flooding router that gives frames a hop
// budget so broadcasts reach the configured neighborhood radius.
package transport

import (
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/keeferrourke/rhpman-sim/wire"
)

var (
	ErrClosed      = errors.New("transport is closed")
	ErrUnreachable = errors.New("destination unreachable")
)

// Receiver is called once for every datagram delivered to this node. sender
// is the originating node, not the last relay.
type Receiver func(sender wire.Address, payload []byte)

// Transport is the send/receive primitive the engine runs on.
type Transport interface {
	// Open binds the transport's endpoints. A failure is fatal to the caller.
	Open() error
	// Close releases the endpoints. Closing twice is a no-op.
	Close() error
	LocalAddress() wire.Address
	Unicast(dest wire.Address, payload []byte) error
	// Broadcast reaches every node within hops links of this one.
	Broadcast(hops uint32, payload []byte) error
	SetReceiver(fn Receiver)
}

// Options tunes the network transports.
type Options struct {
	// UnicastHops bounds the flood used when no route to a destination has
	// been learned yet.
	UnicastHops uint32
	// SendTimeout bounds each hop-to-hop delivery attempt.
	SendTimeout time.Duration
	Logger      hclog.Logger
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		UnicastHops: 8,
		SendTimeout: 2 * time.Second,
		Logger:      hclog.NewNullLogger(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.UnicastHops == 0 {
		o.UnicastHops = d.UnicastHops
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = d.SendTimeout
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	return o
}
