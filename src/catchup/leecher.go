package catchup

import (
	"errors"
	"fmt"
	"time"

	"github.com/mosaicnetworks/ledgersync/src/crypto/merkle"
	"github.com/mosaicnetworks/ledgersync/src/ledger"
	"github.com/mosaicnetworks/ledgersync/src/net"
	"github.com/mosaicnetworks/ledgersync/src/peers"
	"github.com/sirupsen/logrus"
)

type batchRequest struct {
	req    *net.CatchupReq
	peer   string
	cancel func()
}

type bufferedRep struct {
	rep  *net.CatchupRep
	from string
}

// Leecher catches up one ledger. A round starts by collecting LedgerStatus
// reports; it either ends there, when a quorum reports our own ledger, or
// continues with consistency proofs until a target is agreed, and then
// downloads and verifies the missing txns batch by batch.
//
// Batches may arrive in any order but are applied strictly in seqNo order.
// A batch that does not lead to the target root is discarded and requested
// from another peer, and so is a batch that does not arrive in time.
type Leecher struct {
	id        ledger.ID
	ledger    Ledger
	self      string
	peers     *peers.PeerSet
	sender    Sender
	scheduler Scheduler
	conf      Config
	service   *ConsistencyProofService

	buildStatus func() (*net.LedgerStatus, error)

	state  LeecherState
	gated  bool
	target *Target
	halted error

	requests   map[uint64]*batchRequest
	buffer     map[uint64]bufferedRep
	unreliable map[string]struct{}
	cursor     int

	cancelTimer func()

	// OnSynced is called when the ledger is synced. tpc is Unordered if no
	// marker was agreed.
	OnSynced func(id ledger.ID, tpc ledger.ThreePC)
	// OnHalted is called when the ledger could not be written.
	OnHalted func(id ledger.ID, err error)

	logger *logrus.Entry
}

// NewLeecher creates a Leecher for l. buildStatus returns the LedgerStatus
// broadcast when a round starts with status requests.
func NewLeecher(l Ledger,
	self string,
	peerSet *peers.PeerSet,
	sender Sender,
	scheduler Scheduler,
	conf Config,
	buildStatus func() (*net.LedgerStatus, error),
	logger *logrus.Entry) *Leecher {

	logger = logger.WithField("ledger", l.ID().String())

	leecher := &Leecher{
		id:          l.ID(),
		ledger:      l,
		self:        self,
		peers:       peerSet,
		sender:      sender,
		scheduler:   scheduler,
		conf:        conf,
		service:     NewConsistencyProofService(l, self, peerSet, sender, logger),
		buildStatus: buildStatus,
		requests:    make(map[uint64]*batchRequest),
		buffer:      make(map[uint64]bufferedRep),
		unreliable:  make(map[string]struct{}),
		logger:      logger,
	}

	leecher.service.OnSynced = leecher.onUpToDate
	leecher.service.OnTarget = leecher.onTarget

	return leecher
}

// ID ...
func (l *Leecher) ID() ledger.ID {
	return l.id
}

// Service returns the ConsistencyProofService of the ledger.
func (l *Leecher) Service() *ConsistencyProofService {
	return l.service
}

// State returns the internal state.
func (l *Leecher) State() LeecherState {
	return l.state
}

// SyncState returns the externally visible state.
func (l *Leecher) SyncState() SyncState {
	return l.state.SyncState()
}

// Target returns the agreed catch-up target, if any.
func (l *Leecher) Target() *Target {
	return l.target
}

// Halted returns the error that halted the ledger, if any.
func (l *Leecher) Halted() error {
	return l.halted
}

// Gated reports whether batch requests are held back.
func (l *Leecher) Gated() bool {
	return l.gated
}

// SetGated holds batch requests back until Ungate is called.
func (l *Leecher) SetGated(gated bool) {
	l.gated = gated
}

// Ungate releases batch requests, sending them right away if a target was
// already agreed.
func (l *Leecher) Ungate() {
	if !l.gated {
		return
	}
	l.gated = false
	if l.state == ApplyingCatchup {
		l.requestMissing()
	}
}

// Start begins a new round. With requestLedgerStatuses, our status is
// broadcast and every peer is asked for its own; otherwise the round relies
// on unsolicited statuses until the status timeout.
func (l *Leecher) Start(requestLedgerStatuses bool) {
	l.reset()
	l.state = CollectingStatus
	l.service.Start()

	l.logger.WithField("request_statuses", requestLedgerStatuses).Debug("Start catch-up")

	if l.service.Alone() {
		l.finish(ledger.Unordered())
		return
	}

	if requestLedgerStatuses {
		status, err := l.buildStatus()
		if err != nil {
			l.logger.WithError(err).Error("Building LedgerStatus")
		} else {
			l.service.Broadcast(status)
		}
		l.service.RequestLedgerStatuses()
	}

	// statuses may have been handled synchronously
	if l.state == CollectingStatus {
		l.schedule(l.conf.LedgerStatusTimeout, l.onStatusTimeout)
	}
}

// Stop abandons the current round.
func (l *Leecher) Stop() {
	l.reset()
	l.service.Stop()
	l.state = Idle
}

func (l *Leecher) reset() {
	l.cancelAll()
	l.target = nil
	l.halted = nil
	l.requests = make(map[uint64]*batchRequest)
	l.buffer = make(map[uint64]bufferedRep)
	l.unreliable = make(map[string]struct{})
}

func (l *Leecher) cancelAll() {
	if l.cancelTimer != nil {
		l.cancelTimer()
		l.cancelTimer = nil
	}
	for _, br := range l.requests {
		br.cancel()
	}
}

func (l *Leecher) schedule(d time.Duration, fn func()) {
	if l.cancelTimer != nil {
		l.cancelTimer()
	}
	l.cancelTimer = l.scheduler.Schedule(d, fn)
}

func (l *Leecher) onStatusTimeout() {
	if l.state != CollectingStatus {
		return
	}

	l.logger.WithError(ErrQuorumTimeout).WithField("same", l.service.SameLedgerStatus()).Info("Requesting consistency proofs")

	l.state = RequestingProof
	l.service.RequestLedgerStatuses()
	l.service.RequestConsistencyProof()
	l.schedule(l.conf.ConsistencyProofTimeout, l.onProofTimeout)
}

func (l *Leecher) onProofTimeout() {
	if l.state != RequestingProof {
		return
	}

	l.logger.WithError(ErrQuorumTimeout).Info("Requesting consistency proofs again")

	l.service.RequestLedgerStatuses()
	l.service.RequestConsistencyProof()
	l.schedule(l.conf.ConsistencyProofTimeout, l.onProofTimeout)
}

// ProcessLedgerStatus hands a peer's status to the ConsistencyProofService.
func (l *Leecher) ProcessLedgerStatus(status *net.LedgerStatus, from string) error {
	if !l.collecting() {
		return nil
	}
	return l.service.ProcessLedgerStatus(status, from)
}

// ProcessConsistencyProof hands a peer's proof to the
// ConsistencyProofService. Peers sending wrong proofs are not asked for txns.
func (l *Leecher) ProcessConsistencyProof(proof *net.ConsistencyProof, from string) error {
	if !l.collecting() {
		return nil
	}
	err := l.service.ProcessConsistencyProof(proof, from)
	if errors.Is(err, ErrProofMismatch) {
		l.markUnreliable(from)
	}
	return err
}

func (l *Leecher) collecting() bool {
	return l.state == CollectingStatus || l.state == RequestingProof
}

func (l *Leecher) onUpToDate(tpc ledger.ThreePC, ok bool) {
	if !ok {
		tpc = ledger.Unordered()
	}
	l.finish(tpc)
}

func (l *Leecher) onTarget(target *Target) {
	if l.cancelTimer != nil {
		l.cancelTimer()
		l.cancelTimer = nil
	}

	l.target = target
	l.state = ApplyingCatchup

	if l.ledger.Size() >= target.SeqNoEnd {
		l.finish(target.ThreePC)
		return
	}

	if l.gated {
		l.logger.Debug("Catch-up target agreed, waiting for audit ledger")
		return
	}
	l.requestMissing()
}

// requestMissing sends a CatchupReq for every missing batch that is neither
// requested nor buffered.
func (l *Leecher) requestMissing() {
	batch := l.conf.CatchupBatchSize
	if batch == 0 {
		batch = DefaultConfig().CatchupBatchSize
	}

	for start := l.ledger.Size() + 1; start <= l.target.SeqNoEnd; start += batch {
		if _, ok := l.requests[start]; ok {
			continue
		}
		if _, ok := l.buffer[start]; ok {
			continue
		}
		end := start + batch - 1
		if end > l.target.SeqNoEnd {
			end = l.target.SeqNoEnd
		}
		l.requestBatch(start, end, "")
	}
}

func (l *Leecher) requestBatch(start, end uint64, exclude string) {
	if old, ok := l.requests[start]; ok {
		old.cancel()
	}

	peer := l.pickPeer(exclude)
	req := &net.CatchupReq{
		LedgerID:    l.id,
		SeqNoStart:  start,
		SeqNoEnd:    end,
		CatchupTill: l.target.SeqNoEnd,
	}

	br := &batchRequest{
		req:  req,
		peer: peer,
	}
	br.cancel = l.scheduler.Schedule(l.conf.CatchupTimeout, func() {
		l.onBatchTimeout(br)
	})
	l.requests[start] = br

	l.logger.WithFields(logrus.Fields{
		"from": start,
		"to":   end,
		"peer": peer,
	}).Debug("CatchupReq")

	l.service.send(peer, req)
}

func (l *Leecher) onBatchTimeout(br *batchRequest) {
	if l.state != ApplyingCatchup || l.requests[br.req.SeqNoStart] != br {
		return
	}

	l.logger.WithFields(logrus.Fields{
		"from": br.req.SeqNoStart,
		"peer": br.peer,
	}).Info("CatchupReq timed out")

	l.requestBatch(br.req.SeqNoStart, br.req.SeqNoEnd, br.peer)
}

// pickPeer returns the next peer to ask for txns, in round-robin order,
// preferring the peers that proved having them. When every peer has been
// marked unreliable, the marks are cleared.
func (l *Leecher) pickPeer(exclude string) string {
	if p := l.roundRobin(l.target.Peers, exclude); p != "" {
		return p
	}
	if p := l.roundRobin(l.others(), exclude); p != "" {
		return p
	}

	l.logger.Debug("Every peer is unreliable, clearing")
	l.unreliable = make(map[string]struct{})

	if p := l.roundRobin(l.target.Peers, exclude); p != "" {
		return p
	}
	if p := l.roundRobin(l.others(), exclude); p != "" {
		return p
	}
	return exclude
}

func (l *Leecher) others() []string {
	_, others := peers.ExcludePeer(l.peers.Peers, l.self)
	res := make([]string, len(others))
	for i, p := range others {
		res[i] = p.NetAddr
	}
	return res
}

func (l *Leecher) roundRobin(addrs []string, exclude string) string {
	for i := range addrs {
		p := addrs[(l.cursor+i)%len(addrs)]
		if p == exclude {
			continue
		}
		if _, bad := l.unreliable[p]; bad {
			continue
		}
		l.cursor += i + 1
		return p
	}
	return ""
}

func (l *Leecher) markUnreliable(peer string) {
	l.unreliable[peer] = struct{}{}
}

// ProcessCatchupRep buffers a batch of txns and applies every batch that
// follows the end of the ledger.
func (l *Leecher) ProcessCatchupRep(rep *net.CatchupRep, from string) error {
	if l.state != ApplyingCatchup {
		return nil
	}

	br, ok := l.requests[rep.SeqNoStart]
	if !ok {
		l.logger.WithFields(logrus.Fields{
			"from":  from,
			"start": rep.SeqNoStart,
		}).Debug("Ignoring unexpected CatchupRep")
		return nil
	}

	if len(rep.Txns) == 0 ||
		rep.SeqNoEnd() != br.req.SeqNoEnd ||
		rep.CatchupTill != l.target.SeqNoEnd {

		l.markUnreliable(from)
		if from == br.peer {
			l.requestBatch(br.req.SeqNoStart, br.req.SeqNoEnd, from)
		}
		return fmt.Errorf("%w: CatchupRep %d txns from %d till %d, expected %d->%d till %d",
			ErrMalformedMessage, len(rep.Txns), rep.SeqNoStart, rep.CatchupTill,
			br.req.SeqNoStart, br.req.SeqNoEnd, l.target.SeqNoEnd)
	}

	br.cancel()
	delete(l.requests, rep.SeqNoStart)
	l.buffer[rep.SeqNoStart] = bufferedRep{rep: rep, from: from}

	return l.applyBuffered()
}

func (l *Leecher) applyBuffered() error {
	for l.state == ApplyingCatchup {
		next := l.ledger.Size() + 1
		b, ok := l.buffer[next]
		if !ok {
			break
		}
		delete(l.buffer, next)

		if err := l.verify(b.rep); err != nil {
			l.logger.WithError(err).WithFields(logrus.Fields{
				"from":  b.from,
				"start": next,
			}).Warn("Discarding CatchupRep")

			l.markUnreliable(b.from)
			l.requestBatch(b.rep.SeqNoStart, b.rep.SeqNoEnd(), b.from)
			return err
		}

		if err := l.ledger.AppendAt(next, b.rep.Txns); err != nil {
			serr := &StorageError{LedgerID: l.id, Err: err}
			l.halt(serr)
			return serr
		}

		l.service.Reset()
	}

	if l.state == ApplyingCatchup && l.ledger.Size() >= l.target.SeqNoEnd {
		l.finish(l.target.ThreePC)
	}

	return nil
}

// verify checks that appending the txns of rep to the ledger gives a tree
// that the target root extends.
func (l *Leecher) verify(rep *net.CatchupRep) error {
	frontier := l.ledger.Frontier()
	for _, txn := range rep.Txns {
		frontier.AppendData(txn)
	}

	hashes, err := merkle.DecodeHashes(rep.ConsProof)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProofMismatch, err)
	}

	if err := merkle.VerifyConsistency(frontier.Size(), l.target.SeqNoEnd, frontier.Root(), l.target.RootHash, hashes); err != nil {
		return fmt.Errorf("%w: %v", ErrProofMismatch, err)
	}
	return nil
}

func (l *Leecher) halt(err error) {
	l.logger.WithError(err).Error("Halting catch-up")

	l.cancelAll()
	l.requests = make(map[uint64]*batchRequest)
	l.buffer = make(map[uint64]bufferedRep)
	l.service.Stop()
	l.halted = err
	l.state = Halted

	if l.OnHalted != nil {
		l.OnHalted(l.id, err)
	}
}

func (l *Leecher) finish(tpc ledger.ThreePC) {
	l.cancelAll()
	l.requests = make(map[uint64]*batchRequest)
	l.buffer = make(map[uint64]bufferedRep)
	l.service.Stop()
	l.state = Done

	l.logger.WithFields(logrus.Fields{
		"size": l.ledger.Size(),
		"3pc":  tpc.String(),
	}).Info("Ledger synced")

	if l.OnSynced != nil {
		l.OnSynced(l.id, tpc)
	}
}
