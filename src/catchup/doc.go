// Package catchup brings the ledgers of a node to the state agreed by the
// pool.
//
// A node that restarts, reconnects, or joins does not trust any single peer
// about the content of its ledgers. For every ledger, a Leecher collects
// LedgerStatus reports from the pool and lets a ConsistencyProofService
// decide between three outcomes:
//
//   - N-f-1 peers report exactly our (size, root): the ledger is already up to
//     date and nothing is downloaded.
//   - f+1 peers send the same ConsistencyProof from our (size, root) to a
//     larger (size', root'): the ledger is behind and (size', root') becomes
//     the catch-up target. Missing txns are requested in batches, each batch
//     being checked against the target root before it is appended.
//   - neither: requests are repeated on timeout until one of the above
//     happens.
//
// Along the way, the 3PC markers carried by the reports are tallied; a marker
// reported by f+1 peers is the one published to the node when the ledger is
// declared synced.
//
// A Seeder answers the same messages on behalf of the other nodes, and a
// Manager owns one Leecher and one Seeder per ledger, routes inbound RPCs,
// holds every ledger back until the audit ledger is synced, and signals when
// all ledgers are up to date.
//
// Nothing in this package blocks or starts goroutines: handlers run on the
// node's event loop, messages are sent fire-and-forget, and timeouts are
// callbacks scheduled through a Scheduler that feeds the same loop.
package catchup
