// Package peers defines the members of a ledger pool and the quorum
// thresholds derived from the pool size.
//
// A pool of N nodes tolerates f = floor((N-1)/3) byzantine members. Every
// decision of the catch-up protocol is a threshold over distinct peers:
//
//	LedgerStatus      N-f-1  peers agreeing with our own ledger
//	LastOrdered3PC    f+1    peers agreeing on a 3PC marker
//	ConsistencyProof  f+1    peers agreeing on a catch-up target
//
// Upon starting up, a node expects to find a peers.json file in its data
// directory listing every member of the pool, itself included. Peers are
// addressed by their NetAddr, which also identifies them in quorum tallies.
package peers
