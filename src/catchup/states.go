package catchup

// SyncState is the lifecycle of a ledger as seen by the rest of the node.
type SyncState uint32

const (
	// NotSynced ...
	NotSynced SyncState = iota
	// Syncing means that txns are being downloaded.
	Syncing
	// Synced ...
	Synced
)

func (s SyncState) String() string {
	switch s {
	case NotSynced:
		return "not_synced"
	case Syncing:
		return "syncing"
	case Synced:
		return "synced"
	default:
		return "unknown"
	}
}

// LeecherState is the internal state of a Leecher.
type LeecherState uint32

const (
	// Idle ...
	Idle LeecherState = iota
	// CollectingStatus is the first phase of a round, where LedgerStatus
	// reports are tallied.
	CollectingStatus
	// RequestingProof is entered when no fast-sync quorum was reached before
	// the status timeout.
	RequestingProof
	// ApplyingCatchup is entered when a catch-up target was agreed.
	ApplyingCatchup
	// Done ...
	Done
	// Halted is entered when the ledger could not be written to.
	Halted
)

func (s LeecherState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case CollectingStatus:
		return "CollectingStatus"
	case RequestingProof:
		return "RequestingProof"
	case ApplyingCatchup:
		return "ApplyingCatchup"
	case Done:
		return "Synced"
	case Halted:
		return "Halted"
	default:
		return "Unknown"
	}
}

// SyncState maps the internal state to the externally visible one.
func (s LeecherState) SyncState() SyncState {
	switch s {
	case ApplyingCatchup:
		return Syncing
	case Done:
		return Synced
	default:
		return NotSynced
	}
}
