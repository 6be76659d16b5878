package catchup

import (
	"errors"
	"fmt"

	"github.com/mosaicnetworks/ledgersync/src/ledger"
)

var (
	// ErrMalformedMessage is the class of structurally invalid messages.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrMalformedStatus is returned for a LedgerStatus where only one of
	// viewNo and ppSeqNo is set.
	ErrMalformedStatus = fmt.Errorf("%w: ledger status with partial 3PC", ErrMalformedMessage)
	// ErrInvalidMerkleRoot is returned when a root fails validation.
	ErrInvalidMerkleRoot = errors.New("invalid merkle root")
	// ErrProofMismatch is returned when txns or a proof do not lead to the
	// claimed root.
	ErrProofMismatch = errors.New("proof mismatch")
	// ErrStaleProof is returned for proofs that do not start at our ledger.
	ErrStaleProof = errors.New("stale consistency proof")
	// ErrQuorumTimeout is reported when a collection window elapses without
	// a decision. It is informational.
	ErrQuorumTimeout = errors.New("quorum timeout")
	// ErrUnknownLedger is returned for messages about a ledger that was never
	// registered.
	ErrUnknownLedger = errors.New("unknown ledger")
	// ErrUnknownPeer is returned for messages from outside the pool.
	ErrUnknownPeer = errors.New("unknown peer")
)

// StorageError wraps a failure of the ledger storage. It stops the catch-up of
// the ledger.
type StorageError struct {
	LedgerID ledger.ID
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error on %s ledger: %v", e.LedgerID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
