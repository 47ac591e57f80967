// Package rhpman implements the per-node RHPMAN protocol engine: replica
// holder election, delivery-probability profiles and the store/lookup
// protocol for content in intermittently connected ad hoc networks.
//
// Model
//
// Every node runs one Engine. The engine never blocks and never locks:
// transport receives, timer firings and application calls each run to
// completion on a single goroutine owned by the caller (a node event loop
// or the simulator). Outbound traffic is fire-and-forget; every
// request/response exchange is paired with an independent timeout.
//
//	Ping            -> neighborhood    current profile, every ProfileUpdateDelay
//	ReplicaAnnounce -> neighborhood    replicators only, every ProfileUpdateDelay
//	ModeChange      -> election scope  on every role change
//	ElectionRequest -> election scope  when a round starts
//	ElectionFitness -> election scope  when a round starts
//	Store, LookupRequest, LookupResponse, Transfer -> unicast
//
// A node becomes replicating when no peer fitness collected during a round
// is strictly greater than its own. Non-replicating nodes forward content
// to known replicators and to peers whose advertised profile clears the
// forwarding threshold, and carry it themselves in a transit buffer when
// their own profile clears the carrying threshold.
package rhpman
