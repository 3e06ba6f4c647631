// Package gossipmesh disseminates messages across a fleet of processes
// by TTL-bounded flooding over TCP: each Gossip Node forwards a message
// to every neighbor except the one it arrived from, deduplicating by
// message id until the message's TTL doubles over and its seen-cache
// entry is evicted.
//
// Create a Mesh from a Config to start one or more local Gossip Nodes,
// each with its own TCP listener. Wire nodes together either in-process
// via BuildGraph (for simulation and tests) or across processes via
// ConnectPeer once a remote node's address and UID are known, typically
// through the discovery package or a static peer list.
//
// Injecting a message is either fire-and-forget (Node.Broadcast) or a
// query whose per-node contributions fold into a single aggregate as
// replies flow back up the forwarding tree (Node.SolicitWait) or straight
// back to the origin (Node.SolicitDirect).
package gossipmesh
