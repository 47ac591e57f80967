package rhpman

import (
	"fmt"
	"sort"
	"time"

	"github.com/keeferrourke/rhpman-sim/logger"
	"github.com/keeferrourke/rhpman-sim/peers"
	"github.com/keeferrourke/rhpman-sim/storage"
	"github.com/keeferrourke/rhpman-sim/timer"
	"github.com/keeferrourke/rhpman-sim/transport"
	"github.com/keeferrourke/rhpman-sim/wire"
)

// Role is the part a node plays in replica placement.
type Role int

const (
	NonReplicating Role = iota
	Replicating
)

func (r Role) String() string {
	if r == Replicating {
		return "replicating"
	}
	return "non-replicating"
}

// State is the engine lifecycle state.
type State int

const (
	NotStarted State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return "not-started"
}

// Stats counts engine activity since creation.
type Stats struct {
	Sent             uint64
	SendErrors       uint64
	Received         uint64
	Duplicates       uint64
	Malformed        uint64
	Stored           uint64
	DroppedFull      uint64
	Elections        uint64
	LookupsSucceeded uint64
	LookupsFailed    uint64
}

type timerKey int

const (
	keyPing timerKey = iota
	keyWatchdog
	keyAnnounce
	keyElectionCheck
	keyElectionRetry
)

// FitnessFunc scores a node for the current election round.
type FitnessFunc func(e *Engine) float64

// Option configures an Engine.
type Option func(*Engine)

// WithFitness replaces CalculateElectionFitness as the node's score.
func WithFitness(fn FitnessFunc) Option {
	return func(e *Engine) { e.fitnessFn = fn }
}

// Engine is one node's protocol state machine. It is not safe for
// concurrent use; every method, receive and timer callback must run on the
// goroutine driving the scheduler.
type Engine struct {
	cfg   Config
	tr    transport.Transport
	sched timer.Scheduler
	log   *logger.Node

	self  wire.Address
	state State
	role  Role

	primary     *storage.Store
	transit     *storage.Store
	profiles    *peers.Profiles
	replicators *peers.Replicators
	seen        *seenSet

	timers  *timer.Keyed[timerKey]
	lookups *timer.Keyed[uint64]
	pending map[uint64]uint64 // request ID -> content ID

	electing        bool
	ownFitness      float64
	fitness         map[wire.Address]float64
	minElectionTime time.Time
	fitnessFn       FitnessFunc

	lastPing      time.Time
	lastNeighbors map[wire.Address]struct{}
	churn         []float64

	nextID uint64

	onSuccess func(wire.ContentItem)
	onFailure func(contentID uint64)
	stats     Stats
}

// New returns an engine bound to tr and sched. The engine does nothing
// until Start.
func New(cfg Config, tr transport.Transport, sched timer.Scheduler, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if tr == nil {
		return nil, ErrTransportRequired
	}
	if sched == nil {
		return nil, ErrSchedulerRequired
	}
	e := &Engine{
		cfg:       cfg,
		tr:        tr,
		sched:     sched,
		log:       logger.ForNode(tr.LocalAddress().String()),
		timers:    timer.NewKeyed[timerKey](sched),
		lookups:   timer.NewKeyed[uint64](sched),
		fitnessFn: (*Engine).CalculateElectionFitness,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.reset()
	return e, nil
}

func (e *Engine) reset() {
	e.role = NonReplicating
	e.primary = storage.New(e.cfg.PrimaryCapacity)
	e.transit = storage.New(e.cfg.TransitCapacity)
	e.profiles = peers.NewProfiles(e.sched, e.cfg.ProfileTimeout)
	e.profiles.OnExpire(func(addr wire.Address) {
		e.log.Debugf("profile of %s expired", addr)
	})
	e.replicators = peers.NewReplicators(e.sched, e.cfg.ReplicationNodeTimeout)
	e.replicators.OnEmpty(e.replicatorsEmptied)
	e.seen = newSeenSet(e.cfg.SeenCapacity)
	e.pending = make(map[uint64]uint64)
	e.electing = false
	e.fitness = make(map[wire.Address]float64)
	e.minElectionTime = time.Time{}
	e.lastPing = time.Time{}
	e.lastNeighbors = nil
	e.churn = nil
}

// SetOnLookupSuccess registers the callback for resolved lookups.
func (e *Engine) SetOnLookupSuccess(fn func(item wire.ContentItem)) {
	e.onSuccess = fn
}

// SetOnLookupFailure registers the callback for lookups that timed out.
func (e *Engine) SetOnLookupFailure(fn func(contentID uint64)) {
	e.onFailure = fn
}

// Start binds the transport, resets every table and store, and schedules
// the periodic tasks. Starting a running engine is a no-op. A transport
// failure is returned and leaves the engine in its previous state.
func (e *Engine) Start() error {
	if e.state == Running {
		return nil
	}
	self := e.tr.LocalAddress()
	e.tr.SetReceiver(e.receive)
	if err := e.tr.Open(); err != nil {
		return fmt.Errorf("start %s: %w", self, err)
	}

	e.self = self
	e.log = logger.ForNode(self.String())
	e.reset()
	e.state = Running
	e.log.Infof("engine started (initial role %s)", e.cfg.InitialRole)

	e.timers.Repeat(keyPing, e.cfg.ProfileUpdateDelay, e.profileTick)
	e.ping(true)
	if e.cfg.InitialRole == Replicating {
		e.ChangeRole(Replicating)
	} else {
		e.armWatchdog()
		e.timers.Schedule(keyElectionRetry, e.cfg.ElectionTimeout, e.electIfOrphaned)
	}
	return nil
}

// Stop cancels every timer, resolves pending lookups as failures and
// releases the transport. Stopping an engine that is not running is a
// no-op.
func (e *Engine) Stop() {
	if e.state != Running {
		return
	}
	e.state = Stopped
	e.timers.CancelAll()
	e.lookups.CancelAll()
	e.profiles.Reset()
	e.replicators.Reset()

	ids := make([]uint64, 0, len(e.pending))
	for id := range e.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		e.failLookup(id)
	}

	if err := e.tr.Close(); err != nil {
		e.log.Warnf("closing transport: %v", err)
	}
	e.log.Infof("engine stopped")
}

// Lookup resolves contentID through the success or failure callback,
// exactly once. A local hit resolves synchronously.
func (e *Engine) Lookup(contentID uint64) error {
	if e.state != Running {
		return ErrNotRunning
	}
	if item, ok := e.local(contentID); ok {
		e.succeed(item)
		return nil
	}

	env := e.newEnvelope(wire.LookupRequest{
		ContentID: contentID,
		Requestor: e.self,
		Sigma:     e.CalculateProfile(),
	})
	reqID := env.ID
	e.pending[reqID] = contentID
	e.lookups.Schedule(reqID, e.cfg.RequestTimeout, func() { e.lookupTimeout(reqID) })

	var targets []wire.Address
	if e.replicators.Len() > 0 {
		targets = e.replicators.Members()
	} else {
		targets = e.profiles.Above(e.cfg.ForwardingThreshold, true)
	}
	e.log.Debugf("lookup %d as request %d to %d peers", contentID, reqID, len(targets))
	e.unicastAll(targets, env)
	return nil
}

// Save stores item in the primary store and propagates it to replicators
// and well placed peers. It reports whether the local store accepted it.
func (e *Engine) Save(item wire.ContentItem) bool {
	if e.state != Running {
		return false
	}
	ok := !e.transit.Has(item.ID) && e.primary.Store(item)
	if ok {
		e.stats.Stored++
	} else {
		e.stats.DroppedFull++
		e.log.Debugf("primary store rejected item %d", item.ID)
	}
	env := e.newEnvelope(wire.Store{Item: item.Clone()})
	e.unicastAll(e.semiProbabilisticTargets(e.cfg.ForwardingThreshold), env)
	return ok
}

func (e *Engine) local(contentID uint64) (wire.ContentItem, bool) {
	if item, ok := e.primary.Get(contentID); ok {
		return item, true
	}
	return e.transit.Get(contentID)
}

func (e *Engine) succeed(item wire.ContentItem) {
	e.stats.LookupsSucceeded++
	if e.onSuccess != nil {
		e.onSuccess(item)
	}
}

func (e *Engine) lookupTimeout(reqID uint64) {
	if _, ok := e.pending[reqID]; !ok {
		return
	}
	e.log.Debugf("request %d timed out", reqID)
	e.failLookup(reqID)
}

func (e *Engine) failLookup(reqID uint64) {
	contentID, ok := e.pending[reqID]
	if !ok {
		return
	}
	delete(e.pending, reqID)
	e.lookups.Cancel(reqID)
	e.stats.LookupsFailed++
	if e.onFailure != nil {
		e.onFailure(contentID)
	}
}

// Address returns the node address the engine runs as.
func (e *Engine) Address() wire.Address {
	if e.self == wire.NoAddress {
		return e.tr.LocalAddress()
	}
	return e.self
}

func (e *Engine) Role() Role   { return e.role }
func (e *Engine) State() State { return e.state }
func (e *Engine) Stats() Stats { return e.stats }
func (e *Engine) Config() Config {
	return e.cfg
}

// Replicators returns the known replicating nodes in address order.
func (e *Engine) Replicators() []wire.Address {
	return e.replicators.Members()
}

// PeerProfile returns the last profile advertised by addr.
func (e *Engine) PeerProfile(addr wire.Address) (float64, bool) {
	return e.profiles.Get(addr)
}

// PrimaryItems returns a snapshot of the primary store.
func (e *Engine) PrimaryItems() []wire.ContentItem {
	return e.primary.All()
}

// TransitItems returns a snapshot of the transit buffer.
func (e *Engine) TransitItems() []wire.ContentItem {
	return e.transit.All()
}

// PendingLookups returns the number of unresolved lookups.
func (e *Engine) PendingLookups() int {
	return len(e.pending)
}
