// Package ledger is the storage collaborator of the catch-up protocol.
//
// A node maintains four append-only ledgers (pool, domain, config and audit)
// over a single key-value Store. Each Ledger keeps the merkle frontier of its
// transactions in memory so that the current size and root are always at
// hand, and reads older leaf hashes from the Store when a consistency proof
// or a historical root is needed.
//
// The audit ledger is special: every entry is an AuditEntry recording the 3PC
// marker at which a batch was ordered together with the sizes and roots of
// all ledgers at that point. The last audit entry is where a node reads the
// 3PC it reports in its LedgerStatus.
package ledger
