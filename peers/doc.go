// Package peers keeps the engine's soft state about other nodes.
//
// Nothing here is ever told that a peer left. Every entry is kept alive by
// the peer's own traffic and carries an expiry timer; when a peer goes
// quiet for longer than the configured timeout it is presumed unreachable
// and its entry disappears.
//
//	Profiles    - delivery probability advertised in each peer's Ping.
//	Replicators - peers believed to be replicating nodes. An entry refreshed
//	              by a ReplicaAnnounce is "near": the announce travels only
//	              the neighborhood hop radius, so hearing it proves a
//	              replicator is within reach.
//
// Both tables run on a timer.Scheduler and, like the engine, are not safe
// for concurrent use.
package peers
