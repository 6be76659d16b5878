package catchup

import (
	"errors"
	"fmt"

	"github.com/mosaicnetworks/ledgersync/src/crypto/merkle"
	"github.com/mosaicnetworks/ledgersync/src/ledger"
	"github.com/mosaicnetworks/ledgersync/src/net"
	"github.com/mosaicnetworks/ledgersync/src/peers"
	"github.com/sirupsen/logrus"
)

// statusKey identifies a ledger state reported in a LedgerStatus.
type statusKey struct {
	size uint64
	root string
}

// proofKey identifies the end state claimed by a ConsistencyProof.
type proofKey struct {
	end  uint64
	root string
}

// Target is a ledger state agreed by a quorum of consistency proofs.
type Target struct {
	SeqNoStart uint64
	SeqNoEnd   uint64
	MerkleRoot string
	RootHash   []byte
	// ThreePC is the marker of the last ordered batch at SeqNoEnd, or
	// Unordered if no quorum agreed on it.
	ThreePC ledger.ThreePC
	// Peers sent a proof to this target.
	Peers []string
}

func (t *Target) String() string {
	return fmt.Sprintf("%d->%d %s %s", t.SeqNoStart, t.SeqNoEnd, t.MerkleRoot, t.ThreePC)
}

// ConsistencyProofService decides, for one ledger, whether the ledger is up to
// date or which state it must be caught up to. It tallies LedgerStatus
// reports and ConsistencyProofs, one per peer and per round, and derives the
// last ordered 3PC marker agreed by the pool.
type ConsistencyProofService struct {
	id      ledger.ID
	ledger  Ledger
	self    string
	peers   *peers.PeerSet
	quorums peers.Quorums
	sender  Sender

	active bool

	reported   map[string]struct{}
	statuses   *Tally[statusKey]
	threePCs   *Tally[ledger.ThreePC]
	derived    ledger.ThreePC
	hasDerived bool

	proofPeers map[string]struct{}
	proofs     *Tally[proofKey]
	proof3PCs  map[proofKey]*Tally[ledger.ThreePC]

	// OnSynced is called when a quorum of peers reports our own ledger
	// state. ok is false if no 3PC marker was agreed.
	OnSynced func(tpc ledger.ThreePC, ok bool)
	// OnTarget is called when a quorum of consistency proofs agree.
	OnTarget func(target *Target)

	logger *logrus.Entry
}

// NewConsistencyProofService ...
func NewConsistencyProofService(l Ledger,
	self string,
	peerSet *peers.PeerSet,
	sender Sender,
	logger *logrus.Entry) *ConsistencyProofService {

	s := &ConsistencyProofService{
		id:      l.ID(),
		ledger:  l,
		self:    self,
		peers:   peerSet,
		quorums: peerSet.Quorums(),
		sender:  sender,
		logger:  logger,
	}
	s.clear()
	return s
}

// Start opens a new round.
func (s *ConsistencyProofService) Start() {
	s.clear()
	s.active = true
}

// Stop closes the current round. Later reports are ignored until the next
// Start.
func (s *ConsistencyProofService) Stop() {
	s.clear()
	s.active = false
}

// Reset discards every report of the current round. It is called whenever
// the local ledger changes, since reports compare against it.
func (s *ConsistencyProofService) Reset() {
	s.clear()
}

func (s *ConsistencyProofService) clear() {
	s.reported = make(map[string]struct{})
	s.statuses = NewTally[statusKey]()
	s.threePCs = NewTally[ledger.ThreePC]()
	s.derived = ledger.Unordered()
	s.hasDerived = false

	s.proofPeers = make(map[string]struct{})
	s.proofs = NewTally[proofKey]()
	s.proof3PCs = make(map[proofKey]*Tally[ledger.ThreePC])
}

// Active reports whether a round is open.
func (s *ConsistencyProofService) Active() bool {
	return s.active
}

// Alone reports whether the pool is too small for any report to be needed.
func (s *ConsistencyProofService) Alone() bool {
	return s.quorums.LedgerStatus.IsReached(0)
}

// SameLedgerStatus returns the peers that reported our own ledger state in
// the current round.
func (s *ConsistencyProofService) SameLedgerStatus() []string {
	return s.statuses.Reporters(s.localKey())
}

// Agreed3PC returns the 3PC marker reported by a quorum of peers, if any.
func (s *ConsistencyProofService) Agreed3PC() (ledger.ThreePC, bool) {
	return s.derived, s.hasDerived
}

func (s *ConsistencyProofService) localKey() statusKey {
	return statusKey{
		size: s.ledger.Size(),
		root: s.ledger.Root(),
	}
}

// ProcessLedgerStatus records the status reported by peer from. Malformed
// statuses are rejected before anything is recorded, and only the first
// status of each peer counts in a round.
func (s *ConsistencyProofService) ProcessLedgerStatus(status *net.LedgerStatus, from string) error {
	if !s.active {
		return nil
	}

	if err := merkle.Validate(status.MerkleRoot); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMerkleRoot, err)
	}

	tpc, err := status.ThreePC()
	if err != nil {
		return ErrMalformedStatus
	}

	if _, ok := s.reported[from]; ok {
		s.logger.WithField("from", from).Debug("Ignoring repeated LedgerStatus")
		return nil
	}
	s.reported[from] = struct{}{}

	key := statusKey{size: status.TxnSeqNo, root: status.MerkleRoot}
	same := s.statuses.Add(key, from)

	if s.quorums.LastOrdered3PC.IsReached(s.threePCs.Add(tpc, from)) {
		s.derived = tpc
		s.hasDerived = true
	}

	s.logger.WithFields(logrus.Fields{
		"from":   from,
		"status": status.String(),
		"count":  same,
	}).Debug("LedgerStatus")

	if key == s.localKey() && s.quorums.LedgerStatus.IsReached(same) {
		s.logger.WithField("quorum", int(s.quorums.LedgerStatus)).Info("Ledger up to date")
		// finish clears the derived marker
		derived, ok := s.derived, s.hasDerived
		s.finish()
		if s.OnSynced != nil {
			s.OnSynced(derived, ok)
		}
	}

	return nil
}

// ProcessConsistencyProof checks a proof from our ledger to a larger state
// and records it. Only the first valid proof of each peer counts.
func (s *ConsistencyProofService) ProcessConsistencyProof(proof *net.ConsistencyProof, from string) error {
	if !s.active {
		return nil
	}

	for _, r := range []string{proof.OldMerkleRoot, proof.NewMerkleRoot} {
		if err := merkle.Validate(r); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMerkleRoot, err)
		}
	}

	if proof.SeqNoEnd <= proof.SeqNoStart {
		return fmt.Errorf("%w: empty proof range %d->%d", ErrMalformedMessage, proof.SeqNoStart, proof.SeqNoEnd)
	}

	local := s.localKey()
	if proof.SeqNoStart != local.size || proof.OldMerkleRoot != local.root {
		return fmt.Errorf("%w: starts at %d, ledger at %d", ErrStaleProof, proof.SeqNoStart, local.size)
	}

	if _, ok := s.proofPeers[from]; ok {
		s.logger.WithField("from", from).Debug("Ignoring repeated ConsistencyProof")
		return nil
	}

	newRoot, err := merkle.DecodeRoot(proof.NewMerkleRoot)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMerkleRoot, err)
	}
	hashes, err := merkle.DecodeHashes(proof.Hashes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := merkle.VerifyConsistency(proof.SeqNoStart, proof.SeqNoEnd, s.ledger.RootHash(), newRoot, hashes); err != nil {
		return fmt.Errorf("%w: %v", ErrProofMismatch, err)
	}

	s.proofPeers[from] = struct{}{}

	key := proofKey{end: proof.SeqNoEnd, root: proof.NewMerkleRoot}
	count := s.proofs.Add(key, from)

	tally, ok := s.proof3PCs[key]
	if !ok {
		tally = NewTally[ledger.ThreePC]()
		s.proof3PCs[key] = tally
	}
	tally.Add(ledger.Ordered(proof.ViewNo, proof.PPSeqNo), from)

	s.logger.WithFields(logrus.Fields{
		"from":  from,
		"proof": proof.String(),
		"count": count,
	}).Debug("ConsistencyProof")

	if !s.quorums.ConsistencyProof.IsReached(count) {
		return nil
	}

	target := &Target{
		SeqNoStart: proof.SeqNoStart,
		SeqNoEnd:   proof.SeqNoEnd,
		MerkleRoot: proof.NewMerkleRoot,
		RootHash:   newRoot,
		ThreePC:    s.target3PC(key),
		Peers:      s.proofs.Reporters(key),
	}

	s.logger.WithField("target", target.String()).Info("Catch-up target agreed")

	s.finish()
	if s.OnTarget != nil {
		s.OnTarget(target)
	}

	return nil
}

// target3PC picks the marker carried by a quorum of the proofs to key, then
// the marker derived from statuses.
func (s *ConsistencyProofService) target3PC(key proofKey) ledger.ThreePC {
	best, found := ledger.Unordered(), false
	tally := s.proof3PCs[key]
	for tpc := range tally.votes {
		if s.quorums.LastOrdered3PC.IsReached(tally.Count(tpc)) && (!found || best.Less(tpc)) {
			best, found = tpc, true
		}
	}
	if found {
		return best
	}
	return s.derived
}

func (s *ConsistencyProofService) finish() {
	s.clear()
	s.active = false
}

// RequestLedgerStatuses asks the peers that did not report yet for their
// LedgerStatus, and returns how many were asked.
func (s *ConsistencyProofService) RequestLedgerStatuses() int {
	req := &net.LedgerStatusRequest{LedgerID: s.id}
	n := 0
	for _, p := range s.peers.Others(s.self) {
		if _, ok := s.reported[p.NetAddr]; ok {
			continue
		}
		s.send(p.NetAddr, req)
		n++
	}
	return n
}

// RequestConsistencyProof asks the peers that did not send a proof, and did
// not report our own state, for a proof starting at our ledger. It returns
// how many peers were asked.
func (s *ConsistencyProofService) RequestConsistencyProof() int {
	local := s.localKey()
	req := &net.ConsistencyProofRequest{
		LedgerID:   s.id,
		SeqNoStart: local.size,
		MerkleRoot: local.root,
	}

	same := make(map[string]struct{})
	for _, p := range s.statuses.Reporters(local) {
		same[p] = struct{}{}
	}

	n := 0
	for _, p := range s.peers.Others(s.self) {
		if _, ok := s.proofPeers[p.NetAddr]; ok {
			continue
		}
		if _, ok := same[p.NetAddr]; ok {
			continue
		}
		s.send(p.NetAddr, req)
		n++
	}
	return n
}

// Broadcast sends cmd to every other peer.
func (s *ConsistencyProofService) Broadcast(cmd interface{}) {
	for _, p := range s.peers.Others(s.self) {
		s.send(p.NetAddr, cmd)
	}
}

func (s *ConsistencyProofService) send(target string, cmd interface{}) {
	if err := s.sender.Send(target, cmd); err != nil && !errors.Is(err, net.ErrTransportShutdown) {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"to": target,
			"op": net.Op(cmd),
		}).Debug("Send failed")
	}
}
