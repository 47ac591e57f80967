package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/keeferrourke/rhpman-sim/logger"
	"github.com/keeferrourke/rhpman-sim/rhpman"
	"github.com/keeferrourke/rhpman-sim/timer"
	"github.com/keeferrourke/rhpman-sim/transport"
	"github.com/keeferrourke/rhpman-sim/wire"
)

// networkTransport is a transport with a mutable neighbor list.
type networkTransport interface {
	transport.Transport
	AddNeighbor(endpoint string)
	RemoveNeighbor(endpoint string)
	Neighbors() []string
}

// loopTransport hands every receive to the node's event loop.
type loopTransport struct {
	networkTransport
	offer func(func()) bool
}

func (t loopTransport) SetReceiver(fn transport.Receiver) {
	t.networkTransport.SetReceiver(func(sender wire.Address, payload []byte) {
		if !t.offer(func() { fn(sender, payload) }) {
			logger.Debugf("[%s] dropping datagram from %s: event loop unavailable", t.LocalAddress(), sender)
		}
	})
}

// Snapshot is a point-in-time view of a node.
type Snapshot struct {
	Name        string
	Identity    wire.Address
	Endpoint    string
	State       rhpman.State
	Role        rhpman.Role
	Profile     float64
	Replicators []wire.Address
	Primary     int
	Transit     int
	Pending     int
	Neighbors   []string
	Stats       rhpman.Stats
}

// Node runs one protocol engine on a network transport. Every engine
// reaction (receive, timer, API call) executes on a single event-loop
// goroutine.
type Node struct {
	config *Config
	engine *rhpman.Engine
	net    networkTransport
	clock  *timer.Real

	events chan func()

	onSuccess func(wire.ContentItem)
	onFailure func(uint64)

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.RWMutex
}

// New creates a new node with the given configuration
func New(config *Config) (*Node, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	n := &Node{
		config: config,
		events: make(chan func(), 256),
	}

	opts := transport.Options{
		UnicastHops: config.UnicastHops,
		SendTimeout: config.SendTimeout,
		Logger:      logger.Named(config.Name + ".transport"),
	}
	var err error
	switch config.Transport {
	case TransportQUIC:
		n.net, err = transport.NewQUIC(config.GetAddress(), config.Identity(), config.Neighbors, opts)
	default:
		n.net, err = transport.NewGRPC(config.GetAddress(), config.Identity(), config.Neighbors, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s transport: %w", config.Transport, err)
	}

	n.clock = timer.NewReal(n.post)
	n.engine, err = rhpman.New(config.Engine, loopTransport{networkTransport: n.net, offer: n.offer}, n.clock)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	n.engine.SetOnLookupSuccess(n.lookupSucceeded)
	n.engine.SetOnLookupFailure(n.lookupFailed)
	return n, nil
}

// Start binds the transport and starts the engine on a fresh event loop.
func (n *Node) Start() error {
	n.mu.Lock()
	if n.cancel != nil {
		n.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	n.ctx, n.cancel, n.done = ctx, cancel, make(chan struct{})
	go n.run(ctx, n.done)
	n.mu.Unlock()

	var startErr error
	if err := n.do(func() { startErr = n.engine.Start() }); err != nil {
		return err
	}
	if startErr != nil {
		n.shutdownLoop()
		return fmt.Errorf("failed to start node %s: %w", n.config.Name, startErr)
	}

	n.logf("Node %s (%s) started on %s over %s", n.config.Name, n.config.Identity(), n.config.GetAddress(), n.config.Transport)
	return nil
}

// Stop stops the engine, releases the transport and ends the event loop.
func (n *Node) Stop() error {
	if err := n.do(n.engine.Stop); err != nil {
		return err
	}
	n.shutdownLoop()
	n.clock.Stop()
	n.logf("Node %s stopped", n.config.Name)
	return nil
}

func (n *Node) shutdownLoop() {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel, n.done = nil, nil
	n.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (n *Node) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case fn := <-n.events:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// post queues fn on the event loop. It is dropped when the loop is not
// running.
func (n *Node) post(fn func()) {
	n.mu.RLock()
	ctx := n.ctx
	running := n.cancel != nil
	n.mu.RUnlock()
	if !running {
		return
	}
	select {
	case n.events <- fn:
	case <-ctx.Done():
	}
}

// offer queues fn without blocking. Inbound datagrams go through offer so
// a full queue sheds traffic instead of stalling transport goroutines.
func (n *Node) offer(fn func()) bool {
	n.mu.RLock()
	running := n.cancel != nil
	n.mu.RUnlock()
	if !running {
		return false
	}
	select {
	case n.events <- fn:
		return true
	default:
		return false
	}
}

// do runs fn on the event loop and waits for it.
func (n *Node) do(fn func()) error {
	n.mu.RLock()
	ctx := n.ctx
	running := n.cancel != nil
	n.mu.RUnlock()
	if !running {
		return ErrNodeStopped
	}

	finished := make(chan struct{})
	select {
	case n.events <- func() { fn(); close(finished) }:
	case <-ctx.Done():
		return ErrNodeStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ErrNodeStopped
	}
}

// OnLookup registers callbacks for lookup results. They run on the event
// loop and must not call back into the node.
func (n *Node) OnLookup(success func(wire.ContentItem), failure func(contentID uint64)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onSuccess, n.onFailure = success, failure
}

func (n *Node) lookupSucceeded(item wire.ContentItem) {
	n.logf("lookup %d succeeded (%d bytes from %s)", item.ID, len(item.Payload), item.Owner)
	n.mu.RLock()
	fn := n.onSuccess
	n.mu.RUnlock()
	if fn != nil {
		fn(item)
	}
}

func (n *Node) lookupFailed(contentID uint64) {
	n.logf("lookup %d failed", contentID)
	n.mu.RLock()
	fn := n.onFailure
	n.mu.RUnlock()
	if fn != nil {
		fn(contentID)
	}
}

// Lookup starts a lookup for contentID.
func (n *Node) Lookup(contentID uint64) error {
	var err error
	if doErr := n.do(func() { err = n.engine.Lookup(contentID) }); doErr != nil {
		return doErr
	}
	return err
}

// Save stores and propagates an item owned by this node.
func (n *Node) Save(id uint64, payload []byte) (bool, error) {
	item := wire.NewContentItem(id, n.config.Identity(), payload)
	var ok bool
	if err := n.do(func() { ok = n.engine.Save(item) }); err != nil {
		return false, err
	}
	return ok, nil
}

// AddNeighbor adds a directly reachable endpoint.
func (n *Node) AddNeighbor(endpoint string) {
	n.net.AddNeighbor(endpoint)
}

// RemoveNeighbor forgets a neighbor endpoint.
func (n *Node) RemoveNeighbor(endpoint string) {
	n.net.RemoveNeighbor(endpoint)
}

// Snapshot returns the node's current state. A stopped node reports its
// configuration only.
func (n *Node) Snapshot() Snapshot {
	s := Snapshot{
		Name:      n.config.Name,
		Identity:  n.config.Identity(),
		Endpoint:  n.config.GetAddress(),
		State:     rhpman.Stopped,
		Neighbors: n.net.Neighbors(),
	}
	_ = n.do(func() {
		s.State = n.engine.State()
		s.Role = n.engine.Role()
		s.Profile = n.engine.CalculateProfile()
		s.Replicators = n.engine.Replicators()
		s.Primary = len(n.engine.PrimaryItems())
		s.Transit = len(n.engine.TransitItems())
		s.Pending = n.engine.PendingLookups()
		s.Stats = n.engine.Stats()
	})
	return s
}

// PrimaryItems returns the items in the primary store.
func (n *Node) PrimaryItems() []wire.ContentItem {
	var items []wire.ContentItem
	_ = n.do(func() { items = n.engine.PrimaryItems() })
	return items
}

// RunElection asks the engine to start an election round now.
func (n *Node) RunElection() (bool, error) {
	var started bool
	if err := n.do(func() { started = n.engine.RunElection() }); err != nil {
		return false, err
	}
	return started, nil
}

// GetConfig returns the node configuration (for external access)
func (n *Node) GetConfig() *Config {
	return n.config
}

// logf logs using the global logger (which handles both stdout and log buffer)
func (n *Node) logf(format string, args ...interface{}) {
	logger.Printf("[%s] %s", n.config.Identity(), fmt.Sprintf(format, args...))
}
