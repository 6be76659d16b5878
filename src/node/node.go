package node

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mosaicnetworks/ledgersync/src/catchup"
	"github.com/mosaicnetworks/ledgersync/src/config"
	"github.com/mosaicnetworks/ledgersync/src/ledger"
	"github.com/mosaicnetworks/ledgersync/src/net"
	"github.com/mosaicnetworks/ledgersync/src/node/state"
	"github.com/mosaicnetworks/ledgersync/src/peers"
	"github.com/sirupsen/logrus"
)

var (
	// ErrShutdown is returned by calls made after the node was shut down.
	ErrShutdown = errors.New("node is shut down")

	// ErrCatchingUp is returned by Commit while the ledgers are not synced.
	ErrCatchingUp = errors.New("node is catching up")

	// ErrAlreadyOrdered is returned by Commit for a batch that is not after
	// the last ordered one.
	ErrAlreadyOrdered = errors.New("batch already ordered")
)

//Node defines a ledgersync node
type Node struct {
	// The node's state is managed by the state.Manager
	state.Manager

	conf   *config.Config
	logger *logrus.Entry

	validator *Validator
	peers     *peers.PeerSet
	self      string

	store   ledger.Store
	ledgers map[ledger.ID]*ledger.Ledger

	catchup   *catchup.Manager
	scheduler *catchup.LoopScheduler

	trans net.Transport
	netCh <-chan net.RPC

	commitCh     chan *CommitPromise
	queryCh      chan func()
	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	start     time.Time
	rpcs      int
	rpcErrors int
	commits   int
}

//NewNode is a factory method that returns a Node instance. It opens every
//ledger on store; the node must be reachable at trans.AdvertiseAddr() in
//peerSet.
func NewNode(conf *config.Config,
	validator *Validator,
	peerSet *peers.PeerSet,
	store ledger.Store,
	trans net.Transport,
) (*Node, error) {

	self := trans.AdvertiseAddr()
	if !peerSet.Contains(self) {
		return nil, fmt.Errorf("%s does not belong to the pool", self)
	}

	logger := conf.Logger().WithFields(logrus.Fields{
		"this_id": validator.ID(),
		"moniker": validator.Moniker,
	})

	node := Node{
		conf:       conf,
		logger:     logger,
		validator:  validator,
		peers:      peerSet,
		self:       self,
		store:      store,
		ledgers:    make(map[ledger.ID]*ledger.Ledger),
		scheduler:  catchup.NewLoopScheduler(),
		trans:      trans,
		netCh:      trans.Consumer(),
		commitCh:   make(chan *CommitPromise),
		queryCh:    make(chan func()),
		shutdownCh: make(chan struct{}),
	}

	node.catchup = catchup.NewManager(conf.CatchupConfig(),
		self,
		peerSet,
		trans,
		node.scheduler,
		logger)

	for _, id := range ledger.AllIDs {
		l, err := ledger.NewLedger(id, store, logger)
		if err != nil {
			return nil, err
		}
		if err := node.catchup.AddLedger(l); err != nil {
			return nil, err
		}
		node.ledgers[id] = l
	}

	node.catchup.OnLedgerSynced = node.onLedgerSynced
	node.catchup.OnAllLedgersSynced = node.onAllLedgersSynced
	node.catchup.OnLedgerHalted = node.onLedgerHalted

	return &node, nil
}

//RunAsync calls Run as a separate thread
func (n *Node) RunAsync() {
	n.logger.Debug("runasync")

	n.GoFunc(n.Run)
}

//Run starts the catch-up of every ledger and runs the node's loop until
//Shutdown. All catch-up handlers, timeouts, and commits run on this loop.
func (n *Node) Run() {
	n.start = time.Now()

	go n.trans.Listen()

	n.catchup.Start(n.conf.RequestLedgerStatuses)

	for {
		select {
		case rpc := <-n.netCh:
			n.processRPC(rpc)
		case fn := <-n.scheduler.Events():
			fn()
		case p := <-n.commitCh:
			p.Respond(n.commit(p))
		case fn := <-n.queryCh:
			fn()
		case <-n.shutdownCh:
			return
		}
	}
}

// exec runs fn on the node's loop and waits for it.
func (n *Node) exec(fn func()) error {
	done := make(chan struct{})

	select {
	case n.queryCh <- func() { fn(); close(done) }:
	case <-n.shutdownCh:
		return ErrShutdown
	}

	<-done
	return nil
}

// Restart abandons the current catch-up round and starts a new one, after a
// reconnection to the pool for example. The node broadcasts its statuses and
// asks every peer for theirs, since peers do not resend them on their own.
func (n *Node) Restart() error {
	return n.exec(func() {
		n.logger.Info("Restarting catch-up")
		n.setState(state.CatchingUp)
		n.catchup.Restart(true)
	})
}

func (n *Node) onLedgerSynced(id ledger.ID, tpc ledger.ThreePC) {
	n.logger.WithFields(logrus.Fields{
		"ledger": id.String(),
		"3pc":    tpc.String(),
	}).Debug("Ledger synced")
}

func (n *Node) onAllLedgersSynced() {
	n.setState(state.Participating)
	n.logStats()
}

func (n *Node) onLedgerHalted(id ledger.ID, err error) {
	n.logger.WithError(err).WithField("ledger", id.String()).Error("Ledger halted")
}

//Commit appends a batch ordered at (viewNo, ppSeqNo) to a ledger and records
//it in the audit ledger. Batches are refused while the node is catching up.
func (n *Node) Commit(id ledger.ID, viewNo, ppSeqNo uint64, txns [][]byte) error {
	p := NewCommitPromise(id, ledger.Ordered(viewNo, ppSeqNo), txns)

	select {
	case n.commitCh <- p:
	case <-n.shutdownCh:
		return ErrShutdown
	}

	return <-p.RespCh
}

func (n *Node) commit(p *CommitPromise) error {
	if n.GetState() != state.Participating {
		return ErrCatchingUp
	}

	if p.LedgerID == ledger.AuditLedgerID {
		return fmt.Errorf("%s ledger is written by commits only", p.LedgerID)
	}

	l, ok := n.ledgers[p.LedgerID]
	if !ok {
		return fmt.Errorf("%w: %s", catchup.ErrUnknownLedger, p.LedgerID)
	}

	if last := n.catchup.LastOrdered3PC(); !last.Less(p.ThreePC) {
		return fmt.Errorf("%w: %s is not after %s", ErrAlreadyOrdered, p.ThreePC, last)
	}

	for _, id := range []ledger.ID{p.LedgerID, ledger.AuditLedgerID} {
		if err := n.catchup.Halted(id); err != nil {
			return fmt.Errorf("%s ledger is halted: %w", id, err)
		}
	}

	if err := l.Append(p.Txns); err != nil {
		return n.storageError(p.LedgerID, err)
	}

	data, err := n.auditEntry(p).Marshal()
	if err != nil {
		return err
	}

	audit := n.ledgers[ledger.AuditLedgerID]
	if err := audit.Append([][]byte{data}); err != nil {
		// the batch is on its ledger but not audited
		n.catchup.LedgerChanged(p.LedgerID)
		return n.storageError(ledger.AuditLedgerID, err)
	}

	for _, id := range []ledger.ID{p.LedgerID, ledger.AuditLedgerID} {
		n.catchup.SetLastOrdered3PC(id, p.ThreePC)
		n.catchup.LedgerChanged(id)
	}

	n.commits++

	n.logger.WithFields(logrus.Fields{
		"ledger": p.LedgerID.String(),
		"3pc":    p.ThreePC.String(),
		"txns":   len(p.Txns),
	}).Debug("Committed batch")

	return nil
}

// storageError halts a ledger that could not be written.
func (n *Node) storageError(id ledger.ID, err error) error {
	serr := &catchup.StorageError{LedgerID: id, Err: err}
	n.catchup.Halt(id, serr)
	return serr
}

func (n *Node) auditEntry(p *CommitPromise) *ledger.AuditEntry {
	viewNo, ppSeqNo := p.ThreePC.Values()

	entry := &ledger.AuditEntry{
		ViewNo:      viewNo,
		PPSeqNo:     ppSeqNo,
		LedgerID:    p.LedgerID,
		LedgerSizes: make(map[ledger.ID]uint64),
		LedgerRoots: make(map[ledger.ID]string),
	}

	for id, l := range n.ledgers {
		if id == ledger.AuditLedgerID {
			continue
		}
		entry.LedgerSizes[id] = l.Size()
		entry.LedgerRoots[id] = l.Root()
	}

	return entry
}

// setState never leaves the Shutdown state.
func (n *Node) setState(s state.State) {
	if n.GetState() != state.Shutdown {
		n.SetState(s)
	}
}

//Shutdown shuts down the node
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")

		//Exit any non-shutdown state immediately
		n.SetState(state.Shutdown)

		//Stop and wait for concurrent operations
		close(n.shutdownCh)

		n.WaitRoutines()

		n.SetState(state.Shutdown)

		n.scheduler.Close()

		//transport and store should only be closed once the loop has
		//returned
		n.trans.Close()

		if err := n.store.Close(); err != nil {
			n.logger.WithError(err).Error("Closing store")
		}
	})
}

// LedgerInfo describes one ledger of the node.
type LedgerInfo struct {
	ID           ledger.ID `json:"id"`
	Name         string    `json:"name"`
	Size         uint64    `json:"size"`
	MerkleRoot   string    `json:"merkle_root"`
	SyncState    string    `json:"sync_state"`
	LeecherState string    `json:"leecher_state"`
	LastOrdered  string    `json:"last_ordered_3pc"`
	Halted       string    `json:"halted,omitempty"`
}

func (n *Node) ledgerInfo(id ledger.ID) LedgerInfo {
	l := n.ledgers[id]

	info := LedgerInfo{
		ID:          id,
		Name:        id.String(),
		Size:        l.Size(),
		MerkleRoot:  l.Root(),
		SyncState:   n.catchup.SyncState(id).String(),
		LastOrdered: n.catchup.LastOrdered3PCOf(id).String(),
	}

	if leecher, err := n.catchup.Leecher(id); err == nil {
		info.LeecherState = leecher.State().String()
	}
	if err := n.catchup.Halted(id); err != nil {
		info.Halted = err.Error()
	}

	return info
}

//GetLedgers returns a snapshot of every ledger, audit ledger first.
func (n *Node) GetLedgers() ([]LedgerInfo, error) {
	var res []LedgerInfo

	err := n.exec(func() {
		for _, id := range n.catchup.LedgerIDs() {
			res = append(res, n.ledgerInfo(id))
		}
	})

	return res, err
}

//GetLedger returns a snapshot of one ledger.
func (n *Node) GetLedger(id ledger.ID) (LedgerInfo, error) {
	if _, ok := n.ledgers[id]; !ok {
		return LedgerInfo{}, fmt.Errorf("%w: %s", catchup.ErrUnknownLedger, id)
	}

	var res LedgerInfo

	err := n.exec(func() {
		res = n.ledgerInfo(id)
	})

	return res, err
}

//GetStats returns stats
func (n *Node) GetStats() (map[string]string, error) {
	var s map[string]string

	err := n.exec(func() {
		s = n.stats()
	})

	return s, err
}

func (n *Node) stats() map[string]string {
	synced := 0
	for _, id := range n.catchup.LedgerIDs() {
		if n.catchup.SyncState(id) == catchup.Synced {
			synced++
		}
	}

	s := map[string]string{
		"id":               fmt.Sprint(n.validator.ID()),
		"moniker":          n.validator.Moniker,
		"state":            n.GetState().String(),
		"num_peers":        strconv.Itoa(n.peers.Len()),
		"max_faulty":       strconv.Itoa(n.peers.MaxFaulty()),
		"synced_ledgers":   fmt.Sprintf("%d/%d", synced, len(n.ledgers)),
		"last_ordered_3pc": n.catchup.LastOrdered3PC().String(),
		"rpcs":             strconv.Itoa(n.rpcs),
		"rpc_errors":       strconv.Itoa(n.rpcErrors),
		"commits":          strconv.Itoa(n.commits),
		"uptime":           time.Since(n.start).Round(time.Second).String(),
	}

	for id, l := range n.ledgers {
		s[fmt.Sprintf("%s_size", id)] = strconv.FormatUint(l.Size(), 10)
	}

	return s
}

func (n *Node) logStats() {
	stats := n.stats()

	n.logger.WithFields(logrus.Fields{
		"state":            stats["state"],
		"num_peers":        stats["num_peers"],
		"synced_ledgers":   stats["synced_ledgers"],
		"last_ordered_3pc": stats["last_ordered_3pc"],
		"rpcs":             stats["rpcs"],
		"rpc_errors":       stats["rpc_errors"],
	}).Info("Stats")
}

//ID returns the validator ID
func (n *Node) ID() uint32 {
	return n.validator.ID()
}

//Addr returns the address of the node in the pool
func (n *Node) Addr() string {
	return n.self
}

//GetPeers returns the peers
func (n *Node) GetPeers() []*peers.Peer {
	return n.peers.Peers
}

//Ledger gives read access to one of the node's ledgers
func (n *Node) Ledger(id ledger.ID) (*ledger.Ledger, bool) {
	l, ok := n.ledgers[id]
	return l, ok
}
