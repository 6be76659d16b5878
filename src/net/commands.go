package net

import (
	"fmt"

	"github.com/mosaicnetworks/ledgersync/src/ledger"
)

// Operation names of the catch-up messages.
const (
	LedgerStatusRequestOp     = "LEDGER_STATUS_REQUEST"
	LedgerStatusOp            = "LEDGER_STATUS"
	ConsistencyProofRequestOp = "CONSISTENCY_PROOF_REQUEST"
	ConsistencyProofOp        = "CONSISTENCY_PROOF"
	CatchupReqOp              = "CATCHUP_REQ"
	CatchupRepOp              = "CATCHUP_REP"
)

// LedgerStatusRequest asks a peer to send its LedgerStatus for a ledger.
type LedgerStatusRequest struct {
	LedgerID ledger.ID
}

// LedgerStatus describes the size and root of a peer's ledger, and the last
// 3PC marker it knows to be ordered. ViewNo and PPSeqNo are either both set or
// both nil.
type LedgerStatus struct {
	LedgerID        ledger.ID
	TxnSeqNo        uint64
	ViewNo          *uint64
	PPSeqNo         *uint64
	MerkleRoot      string
	ProtocolVersion int
}

// NewLedgerStatus builds a LedgerStatus, mapping an Unordered marker to null
// fields.
func NewLedgerStatus(id ledger.ID, txnSeqNo uint64, tpc ledger.ThreePC, merkleRoot string, protocolVersion int) *LedgerStatus {
	viewNo, ppSeqNo := tpc.Nullable()
	return &LedgerStatus{
		LedgerID:        id,
		TxnSeqNo:        txnSeqNo,
		ViewNo:          viewNo,
		PPSeqNo:         ppSeqNo,
		MerkleRoot:      merkleRoot,
		ProtocolVersion: protocolVersion,
	}
}

// ThreePC returns the marker carried by the status. It fails with
// ledger.ErrMalformedThreePC if only one of the fields is set.
func (s *LedgerStatus) ThreePC() (ledger.ThreePC, error) {
	return ledger.FromNullable(s.ViewNo, s.PPSeqNo)
}

func (s *LedgerStatus) String() string {
	tpc, err := s.ThreePC()
	tpcStr := tpc.String()
	if err != nil {
		tpcStr = "malformed"
	}
	return fmt.Sprintf("LedgerStatus{%s size=%d 3pc=%s root=%s}", s.LedgerID, s.TxnSeqNo, tpcStr, s.MerkleRoot)
}

// ConsistencyProofRequest asks a peer for a ConsistencyProof starting at our
// own ledger (SeqNoStart, MerkleRoot).
type ConsistencyProofRequest struct {
	LedgerID   ledger.ID
	SeqNoStart uint64
	MerkleRoot string
}

// ConsistencyProof claims that a ledger can be extended from
// (SeqNoStart, OldMerkleRoot) to (SeqNoEnd, NewMerkleRoot). Hashes is the
// base-58 encoded audit path.
type ConsistencyProof struct {
	LedgerID      ledger.ID
	SeqNoStart    uint64
	SeqNoEnd      uint64
	ViewNo        uint64
	PPSeqNo       uint64
	OldMerkleRoot string
	NewMerkleRoot string
	Hashes        []string
}

func (p *ConsistencyProof) String() string {
	return fmt.Sprintf("ConsistencyProof{%s %d->%d (%d, %d) %s}",
		p.LedgerID, p.SeqNoStart, p.SeqNoEnd, p.ViewNo, p.PPSeqNo, p.NewMerkleRoot)
}

// CatchupReq asks for txns SeqNoStart..SeqNoEnd of a ledger which is being
// caught up to size CatchupTill.
type CatchupReq struct {
	LedgerID    ledger.ID
	SeqNoStart  uint64
	SeqNoEnd    uint64
	CatchupTill uint64
}

// CatchupRep answers a CatchupReq. ConsProof is the base-58 encoded
// consistency proof from the end of the batch to CatchupTill.
type CatchupRep struct {
	LedgerID    ledger.ID
	SeqNoStart  uint64
	CatchupTill uint64
	Txns        [][]byte
	ConsProof   []string
}

// SeqNoEnd is the seqNo of the last txn of the reply.
func (r *CatchupRep) SeqNoEnd() uint64 {
	return r.SeqNoStart + uint64(len(r.Txns)) - 1
}

// Op returns the operation name of a command, or "" for unknown values.
func Op(cmd interface{}) string {
	switch cmd.(type) {
	case *LedgerStatusRequest:
		return LedgerStatusRequestOp
	case *LedgerStatus:
		return LedgerStatusOp
	case *ConsistencyProofRequest:
		return ConsistencyProofRequestOp
	case *ConsistencyProof:
		return ConsistencyProofOp
	case *CatchupReq:
		return CatchupReqOp
	case *CatchupRep:
		return CatchupRepOp
	default:
		return ""
	}
}

// LedgerOf returns the ledger a command is about.
func LedgerOf(cmd interface{}) (ledger.ID, bool) {
	switch c := cmd.(type) {
	case *LedgerStatusRequest:
		return c.LedgerID, true
	case *LedgerStatus:
		return c.LedgerID, true
	case *ConsistencyProofRequest:
		return c.LedgerID, true
	case *ConsistencyProof:
		return c.LedgerID, true
	case *CatchupReq:
		return c.LedgerID, true
	case *CatchupRep:
		return c.LedgerID, true
	default:
		return 0, false
	}
}
