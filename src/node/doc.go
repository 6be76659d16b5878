// Package node hosts the ledgers of a pool member and runs their catch-up.
//
// A Node opens the pool, domain, config, and audit ledgers on a single store
// and drives a catchup.Manager from one goroutine: the loop started by Run
// consumes the messages of the transport, the timeouts of the catch-up
// protocol, the batches committed by the ordering layer, and the queries of
// the HTTP service. Nothing else touches the catch-up state, so it needs no
// locking.
//
// Node implements a small state machine where the states are defined in the
// state package. A node starts CatchingUp; once every ledger is synced with
// the pool it becomes Participating and accepts Commit calls, each one
// appending an ordered batch to a ledger together with an audit entry that
// records the size and merkle root of every ledger at that 3PC marker. Restart
// sends it back to CatchingUp, after a reconnection for example.
package node
