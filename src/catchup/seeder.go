package catchup

import (
	"fmt"

	"github.com/mosaicnetworks/ledgersync/src/crypto/merkle"
	"github.com/mosaicnetworks/ledgersync/src/ledger"
	"github.com/mosaicnetworks/ledgersync/src/net"
	"github.com/sirupsen/logrus"
)

// Seeder serves a ledger to the peers that are catching it up. It never
// initiates anything: every message it sends answers one it received, and a
// peer that is level with us or ahead of us gets no proof.
type Seeder struct {
	id     ledger.ID
	ledger Ledger
	sender Sender

	buildStatus func() (*net.LedgerStatus, error)
	last3PC     func() (ledger.ThreePC, error)

	logger *logrus.Entry
}

// NewSeeder creates a Seeder for l. last3PC returns the marker sent along
// with consistency proofs.
func NewSeeder(l Ledger,
	sender Sender,
	buildStatus func() (*net.LedgerStatus, error),
	last3PC func() (ledger.ThreePC, error),
	logger *logrus.Entry) *Seeder {

	return &Seeder{
		id:          l.ID(),
		ledger:      l,
		sender:      sender,
		buildStatus: buildStatus,
		last3PC:     last3PC,
		logger:      logger.WithField("ledger", l.ID().String()),
	}
}

// ProcessLedgerStatusRequest sends our LedgerStatus to from.
func (s *Seeder) ProcessLedgerStatusRequest(from string) error {
	status, err := s.buildStatus()
	if err != nil {
		return err
	}
	return s.sender.Send(from, status)
}

// ProcessLedgerStatus sends a consistency proof to a peer whose status shows
// it is behind.
func (s *Seeder) ProcessLedgerStatus(status *net.LedgerStatus, from string) error {
	if status.TxnSeqNo >= s.ledger.Size() {
		return nil
	}
	return s.sendProof(from, status.TxnSeqNo, status.MerkleRoot)
}

// ProcessConsistencyProofRequest sends a consistency proof to a peer that is
// behind, and our LedgerStatus to a peer that is level with us.
func (s *Seeder) ProcessConsistencyProofRequest(req *net.ConsistencyProofRequest, from string) error {
	size := s.ledger.Size()
	switch {
	case req.SeqNoStart < size:
		return s.sendProof(from, req.SeqNoStart, req.MerkleRoot)
	case req.SeqNoStart == size:
		if req.MerkleRoot != s.ledger.Root() {
			s.logger.WithField("peer", from).Warn("Peer has a different ledger of the same size")
			return nil
		}
		return s.ProcessLedgerStatusRequest(from)
	default:
		return nil
	}
}

func (s *Seeder) sendProof(to string, start uint64, root string) error {
	if err := merkle.Validate(root); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMerkleRoot, err)
	}

	ours, err := s.ledger.RootAt(start)
	if err != nil {
		return err
	}
	if ours != root {
		s.logger.WithFields(logrus.Fields{
			"peer": to,
			"size": start,
		}).Warn("Peer ledger diverges from ours")
		return nil
	}

	end := s.ledger.Size()
	hashes, err := s.ledger.ConsistencyProof(start, end)
	if err != nil {
		return err
	}

	tpc, err := s.last3PC()
	if err != nil {
		return err
	}
	viewNo, ppSeqNo := tpc.Values()

	proof := &net.ConsistencyProof{
		LedgerID:      s.id,
		SeqNoStart:    start,
		SeqNoEnd:      end,
		ViewNo:        viewNo,
		PPSeqNo:       ppSeqNo,
		OldMerkleRoot: root,
		NewMerkleRoot: s.ledger.Root(),
		Hashes:        merkle.EncodeHashes(hashes),
	}

	s.logger.WithFields(logrus.Fields{
		"peer":  to,
		"proof": proof.String(),
	}).Debug("Sending ConsistencyProof")

	return s.sender.Send(to, proof)
}

// ProcessCatchupReq sends the requested txns, with the proof that they lead to
// the root of the ledger at CatchupTill. Requests beyond our ledger are
// dropped.
func (s *Seeder) ProcessCatchupReq(req *net.CatchupReq, from string) error {
	if req.SeqNoStart == 0 ||
		req.SeqNoStart > req.SeqNoEnd ||
		req.SeqNoEnd > req.CatchupTill {
		return fmt.Errorf("%w: CatchupReq %d->%d till %d",
			ErrMalformedMessage, req.SeqNoStart, req.SeqNoEnd, req.CatchupTill)
	}

	if req.CatchupTill > s.ledger.Size() {
		s.logger.WithFields(logrus.Fields{
			"peer": from,
			"till": req.CatchupTill,
		}).Debug("Cannot serve CatchupReq")
		return nil
	}

	txns, err := s.ledger.GetRange(req.SeqNoStart, req.SeqNoEnd)
	if err != nil {
		return err
	}

	hashes, err := s.ledger.ConsistencyProof(req.SeqNoEnd, req.CatchupTill)
	if err != nil {
		return err
	}

	return s.sender.Send(from, &net.CatchupRep{
		LedgerID:    s.id,
		SeqNoStart:  req.SeqNoStart,
		CatchupTill: req.CatchupTill,
		Txns:        txns,
		ConsProof:   merkle.EncodeHashes(hashes),
	})
}
