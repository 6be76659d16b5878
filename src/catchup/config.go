package catchup

import "time"

// Config holds the parameters of the catch-up protocol.
type Config struct {
	// LedgerStatusTimeout is how long statuses are collected before
	// consistency proofs are requested.
	LedgerStatusTimeout time.Duration
	// ConsistencyProofTimeout is how long to wait for proofs before asking
	// again the peers that did not answer.
	ConsistencyProofTimeout time.Duration
	// CatchupTimeout is how long to wait for a batch of txns before asking
	// another peer.
	CatchupTimeout time.Duration
	// CatchupBatchSize is the maximum number of txns per CatchupReq.
	CatchupBatchSize uint64
	// ProtocolVersion is reported in LedgerStatus messages.
	ProtocolVersion int
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		LedgerStatusTimeout:     5 * time.Second,
		ConsistencyProofTimeout: 5 * time.Second,
		CatchupTimeout:          5 * time.Second,
		CatchupBatchSize:        100,
		ProtocolVersion:         2,
	}
}
