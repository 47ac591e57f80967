package wire

/*
Messages

Every datagram exchanged between engines is one Envelope:

	Envelope{ID, Origin, TimestampMillis, Payload}

ID is drawn from the origin's own monotonically increasing counter, so the
pair (Origin, ID) is unique network-wide. Forwarded messages keep the
original pair, which is what lets every node suppress a flood it has
already seen.

Payload is exactly one of the nine message kinds below.
*/

// Kind tags the payload of an envelope.
type Kind uint8

const (
	KindPing Kind = iota + 1
	KindReplicaAnnounce
	KindModeChange
	KindElectionRequest
	KindElectionFitness
	KindStore
	KindLookupRequest
	KindLookupResponse
	KindTransfer
)

var kindNames = map[Kind]string{
	KindPing:            "Ping",
	KindReplicaAnnounce: "ReplicaAnnounce",
	KindModeChange:      "ModeChange",
	KindElectionRequest: "ElectionRequest",
	KindElectionFitness: "ElectionFitness",
	KindStore:           "Store",
	KindLookupRequest:   "LookupRequest",
	KindLookupResponse:  "LookupResponse",
	KindTransfer:        "Transfer",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Message is implemented by every payload kind.
type Message interface {
	Kind() Kind
}

// ContentItem is a unit of replicated content. It is treated as an
// immutable value: stores and messages hold their own copy of Payload.
type ContentItem struct {
	ID      uint64
	Owner   Address
	Payload []byte
}

// NewContentItem copies payload so the caller may reuse its buffer.
func NewContentItem(id uint64, owner Address, payload []byte) ContentItem {
	return ContentItem{ID: id, Owner: owner, Payload: cloneBytes(payload)}
}

// Clone returns a deep copy of the item.
func (c ContentItem) Clone() ContentItem {
	return ContentItem{ID: c.ID, Owner: c.Owner, Payload: cloneBytes(c.Payload)}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Envelope wraps a single payload with its identity.
type Envelope struct {
	ID              uint64
	Origin          Address
	TimestampMillis int64
	Payload         Message
}

// Ping advertises the sender's current delivery probability.
type Ping struct {
	DeliveryProbability float64
}

// ReplicaAnnounce is the periodic heartbeat of a replicating node.
type ReplicaAnnounce struct{}

// ModeChange announces a role change. NewReplicator == OldReplicator means
// the node became replicating; NewReplicator == NoAddress means it stepped down.
type ModeChange struct {
	OldReplicator Address
	NewReplicator Address
}

// ElectionRequest asks the election neighborhood to run an election.
type ElectionRequest struct{}

// ElectionFitness carries the sender's fitness for the current round.
type ElectionFitness struct {
	Fitness float64
}

// Store asks the receiver to keep or propagate an item.
type Store struct {
	Item ContentItem
}

// LookupRequest asks for a content item. The request ID is the envelope ID.
type LookupRequest struct {
	ContentID uint64
	Requestor Address
	Sigma     float64
}

// LookupResponse answers a LookupRequest.
type LookupResponse struct {
	RequestID uint64
	Item      ContentItem
}

// Transfer hands a batch of items to another node.
type Transfer struct {
	Items []ContentItem
}

func (Ping) Kind() Kind            { return KindPing }
func (ReplicaAnnounce) Kind() Kind { return KindReplicaAnnounce }
func (ModeChange) Kind() Kind      { return KindModeChange }
func (ElectionRequest) Kind() Kind { return KindElectionRequest }
func (ElectionFitness) Kind() Kind { return KindElectionFitness }
func (Store) Kind() Kind           { return KindStore }
func (LookupRequest) Kind() Kind   { return KindLookupRequest }
func (LookupResponse) Kind() Kind  { return KindLookupResponse }
func (Transfer) Kind() Kind        { return KindTransfer }
