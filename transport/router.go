package transport

import (
	"context"
	"encoding/binary"
	"sort"
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/keeferrourke/rhpman-sim/wire"
)

// seenWindow bounds the frame digests a router remembers.
const seenWindow = 4096

type sendFunc func(ctx context.Context, endpoint string, frame []byte) error

// router floods frames between neighbor endpoints. Every frame carries a
// hop budget; relays decrement it and drop frames they have already seen.
// A unicast follows the neighbor the origin was last heard through and
// falls back to a flood when no route is known.
type router struct {
	self wire.Address
	opts Options
	send sendFunc

	mu        sync.Mutex
	endpoint  string
	neighbors map[string]struct{}
	routes    map[wire.Address]string
	seen      map[[32]byte]struct{}
	order     [][32]byte
	next      int
	recv      Receiver
	open      bool
	wg        sync.WaitGroup
}

func newRouter(self wire.Address, endpoint string, neighbors []string, opts Options, send sendFunc) *router {
	r := &router{
		self:      self,
		opts:      opts,
		send:      send,
		endpoint:  endpoint,
		neighbors: make(map[string]struct{}),
		routes:    make(map[wire.Address]string),
		seen:      make(map[[32]byte]struct{}),
		order:     make([][32]byte, seenWindow),
	}
	for _, n := range neighbors {
		r.addNeighbor(n)
	}
	return r
}

func (r *router) addNeighbor(endpoint string) {
	if endpoint == "" || endpoint == r.endpoint {
		return
	}
	r.mu.Lock()
	r.neighbors[endpoint] = struct{}{}
	r.mu.Unlock()
}

func (r *router) removeNeighbor(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.neighbors, endpoint)
	for addr, via := range r.routes {
		if via == endpoint {
			delete(r.routes, addr)
		}
	}
}

func (r *router) neighborList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.neighbors))
	for n := range r.neighbors {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *router) route(dest wire.Address) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	via, ok := r.routes[dest]
	return via, ok
}

func (r *router) setReceiver(fn Receiver) {
	r.mu.Lock()
	r.recv = fn
	r.mu.Unlock()
}

func (r *router) start() {
	r.mu.Lock()
	r.open = true
	r.mu.Unlock()
}

// stop refuses new sends and waits for the in-flight ones.
func (r *router) stop() {
	r.mu.Lock()
	r.open = false
	r.routes = make(map[wire.Address]string)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *router) broadcast(hops uint32, payload []byte) error {
	if hops == 0 {
		return nil
	}
	f := wire.Frame{Origin: r.self, Dest: wire.NoAddress, Hops: hops, Payload: payload}
	return r.originate(f, "")
}

func (r *router) unicast(dest wire.Address, payload []byte) error {
	f := wire.Frame{Origin: r.self, Dest: dest, Hops: r.opts.UnicastHops, Payload: payload}
	via, _ := r.route(dest)
	return r.originate(f, via)
}

func (r *router) originate(f wire.Frame, via string) error {
	r.mu.Lock()
	if !r.open {
		r.mu.Unlock()
		return ErrClosed
	}
	r.markSeen(digest(f))
	r.mu.Unlock()

	raw := wire.EncodeFrame(f)
	if via != "" {
		r.dispatch(via, raw, true)
		return nil
	}
	r.flood(raw, "")
	return nil
}

// handle processes a frame that arrived from the neighbor at endpoint from.
func (r *router) handle(from string, raw []byte) {
	f, err := wire.DecodeFrame(raw)
	if err != nil {
		r.opts.Logger.Debug("dropping frame", "from", from, "error", err)
		return
	}
	if f.Origin == r.self {
		return
	}

	r.mu.Lock()
	if !r.open {
		r.mu.Unlock()
		return
	}
	d := digest(f)
	if _, dup := r.seen[d]; dup {
		r.mu.Unlock()
		return
	}
	r.markSeen(d)
	if from != "" && from != r.endpoint {
		r.neighbors[from] = struct{}{}
		r.routes[f.Origin] = from
	}
	recv := r.recv
	via, routed := r.routes[f.Dest]
	r.mu.Unlock()

	if (f.Dest == wire.NoAddress || f.Dest == r.self) && recv != nil {
		recv(f.Origin, f.Payload)
	}
	if f.Dest == r.self || f.Hops <= 1 {
		return
	}

	f.Hops--
	out := wire.EncodeFrame(f)
	if f.Dest != wire.NoAddress && routed && via != from {
		r.dispatch(via, out, true)
		return
	}
	r.flood(out, from)
}

func (r *router) flood(raw []byte, except string) {
	for _, n := range r.neighborList() {
		if n != except {
			r.dispatch(n, raw, false)
		}
	}
}

// dispatch sends raw to endpoint in the background. It reports false once
// the router is stopped; the in-flight count only grows while open.
func (r *router) dispatch(endpoint string, raw []byte, routed bool) bool {
	r.mu.Lock()
	if !r.open {
		r.mu.Unlock()
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.SendTimeout)
		defer cancel()
		if err := r.send(ctx, endpoint, raw); err != nil {
			r.opts.Logger.Debug("send failed", "endpoint", endpoint, "error", err)
			if routed {
				r.forgetRoutesVia(endpoint)
			}
		}
	}()
	return true
}

func (r *router) forgetRoutesVia(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for addr, via := range r.routes {
		if via == endpoint {
			delete(r.routes, addr)
		}
	}
}

// markSeen must be called with mu held.
func (r *router) markSeen(d [32]byte) {
	if old := r.order[r.next]; old != ([32]byte{}) {
		delete(r.seen, old)
	}
	r.order[r.next] = d
	r.next = (r.next + 1) % len(r.order)
	r.seen[d] = struct{}{}
}

// digest identifies a frame independent of its remaining hop budget.
func digest(f wire.Frame) [32]byte {
	h := sha3.New256()
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(f.Origin))
	binary.BigEndian.PutUint32(hdr[4:], uint32(f.Dest))
	h.Write(hdr[:])
	h.Write(f.Payload)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
