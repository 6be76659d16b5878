// Package merkle implements the append-only merkle tree of RFC 6962 that
// backs every ledger.
//
// Ledgers only keep the compact right frontier of the tree in memory
// (Frontier). Consistency proofs between two sizes of the same ledger are
// produced from the stored leaf hashes with ConsistencyProof and checked by
// the receiving side with VerifyConsistency, which is what lets a lagging node
// accept a continuation of its ledger without trusting the peer that sent it.
//
// Roots travel between nodes as base-58 strings; Validate is the cheap
// syntactic check applied to every root before anything else looks at it.
package merkle
