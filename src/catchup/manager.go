package catchup

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mosaicnetworks/ledgersync/src/ledger"
	"github.com/mosaicnetworks/ledgersync/src/net"
	"github.com/mosaicnetworks/ledgersync/src/peers"
	"github.com/sirupsen/logrus"
)

// AuditLedger is a Ledger whose txns are audit entries. Its last entry
// gives the 3PC marker reported in every LedgerStatus.
type AuditLedger interface {
	Ledger
	LastAuditEntry() (*ledger.AuditEntry, error)
}

// Manager runs the catch-up of every ledger of a node and serves them to the
// other nodes. It is not safe for concurrent use: every method, callback,
// and scheduled function must run on the node's event loop.
type Manager struct {
	conf      Config
	self      string
	peers     *peers.PeerSet
	sender    Sender
	scheduler Scheduler

	ledgers     map[ledger.ID]Ledger
	leechers    map[ledger.ID]*Leecher
	seeders     map[ledger.ID]*Seeder
	lastOrdered map[ledger.ID]ledger.ThreePC
	allSynced   bool

	// OnLedgerSynced is called every time a ledger is synced.
	OnLedgerSynced func(id ledger.ID, tpc ledger.ThreePC)
	// OnAllLedgersSynced is called once per round, when the last ledger is
	// synced.
	OnAllLedgersSynced func()
	// OnLedgerHalted is called when a ledger could not be written. The
	// other ledgers carry on.
	OnLedgerHalted func(id ledger.ID, err error)

	logger *logrus.Entry
}

// NewManager creates a Manager for the node self of the pool peerSet.
func NewManager(conf Config,
	self string,
	peerSet *peers.PeerSet,
	sender Sender,
	scheduler Scheduler,
	logger *logrus.Entry) *Manager {

	return &Manager{
		conf:        conf,
		self:        self,
		peers:       peerSet,
		sender:      sender,
		scheduler:   scheduler,
		ledgers:     make(map[ledger.ID]Ledger),
		leechers:    make(map[ledger.ID]*Leecher),
		seeders:     make(map[ledger.ID]*Seeder),
		lastOrdered: make(map[ledger.ID]ledger.ThreePC),
		logger:      logger,
	}
}

// AddLedger registers a ledger. The audit ledger must implement AuditLedger
// for its entries to be used.
func (m *Manager) AddLedger(l Ledger) error {
	id := l.ID()
	if _, ok := m.ledgers[id]; ok {
		return fmt.Errorf("%s ledger already registered", id)
	}

	status := func() (*net.LedgerStatus, error) {
		return m.BuildLedgerStatus(id)
	}

	leecher := NewLeecher(l, m.self, m.peers, m.sender, m.scheduler, m.conf, status, m.logger)
	leecher.OnSynced = m.onLedgerSynced
	leecher.OnHalted = m.onLedgerHalted

	m.ledgers[id] = l
	m.leechers[id] = leecher
	m.seeders[id] = NewSeeder(l, m.sender, status, m.audit3PC, m.logger)
	m.lastOrdered[id] = ledger.Ordered(0, 0)

	return nil
}

// LedgerIDs returns the registered ledgers, audit ledger first.
func (m *Manager) LedgerIDs() []ledger.ID {
	rank := make(map[ledger.ID]int, len(ledger.AllIDs))
	for i, id := range ledger.AllIDs {
		rank[id] = i
	}

	ids := make([]ledger.ID, 0, len(m.ledgers))
	for id := range m.ledgers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return rank[ids[i]] < rank[ids[j]]
	})
	return ids
}

// Ledger returns a registered ledger.
func (m *Manager) Ledger(id ledger.ID) (Ledger, bool) {
	l, ok := m.ledgers[id]
	return l, ok
}

// Leecher returns the Leecher of a registered ledger.
func (m *Manager) Leecher(id ledger.ID) (*Leecher, error) {
	l, ok := m.leechers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLedger, id)
	}
	return l, nil
}

// Start starts the catch-up of every ledger. While the audit ledger is not
// synced, the other ledgers may decide on a target but do not download txns.
func (m *Manager) Start(requestLedgerStatuses bool) {
	m.allSynced = false

	_, hasAudit := m.ledgers[ledger.AuditLedgerID]
	ids := m.LedgerIDs()

	for _, id := range ids {
		m.leechers[id].SetGated(hasAudit && id != ledger.AuditLedgerID)
	}

	m.logger.WithFields(logrus.Fields{
		"ledgers": len(ids),
		"quorums": m.peers.Quorums().String(),
	}).Info("Starting catch-up")

	for _, id := range ids {
		m.leechers[id].Start(requestLedgerStatuses)
	}
}

// Stop abandons the catch-up of every ledger.
func (m *Manager) Stop() {
	for _, id := range m.LedgerIDs() {
		m.leechers[id].Stop()
	}
}

// Restart stops and starts again, after a reconnection for example.
func (m *Manager) Restart(requestLedgerStatuses bool) {
	m.Stop()
	m.Start(requestLedgerStatuses)
}

func (m *Manager) onLedgerSynced(id ledger.ID, tpc ledger.ThreePC) {
	if tpc.IsOrdered() {
		m.lastOrdered[id] = tpc
	}

	if m.OnLedgerSynced != nil {
		m.OnLedgerSynced(id, tpc)
	}

	if id == ledger.AuditLedgerID {
		for _, other := range m.LedgerIDs() {
			m.leechers[other].Ungate()
		}
	}

	if m.allSynced || !m.AllSynced() {
		return
	}
	m.allSynced = true

	m.logger.WithField("last_ordered", m.LastOrdered3PC().String()).Info("All ledgers synced")

	if m.OnAllLedgersSynced != nil {
		m.OnAllLedgersSynced()
	}
}

// Halt stops a ledger after a storage failure outside catch-up, a commit for
// example. A ledger is only halted once.
func (m *Manager) Halt(id ledger.ID, err error) {
	l, ok := m.leechers[id]
	if !ok || l.Halted() != nil {
		return
	}
	l.halt(err)
}

func (m *Manager) onLedgerHalted(id ledger.ID, err error) {
	if m.OnLedgerHalted != nil {
		m.OnLedgerHalted(id, err)
	}
}

// SyncState returns the state of a ledger, NotSynced for unknown ledgers.
func (m *Manager) SyncState(id ledger.ID) SyncState {
	l, ok := m.leechers[id]
	if !ok {
		return NotSynced
	}
	return l.SyncState()
}

// AllSynced reports whether every registered ledger is synced.
func (m *Manager) AllSynced() bool {
	for _, l := range m.leechers {
		if l.SyncState() != Synced {
			return false
		}
	}
	return len(m.leechers) > 0
}

// Halted returns the error that halted a ledger, if any.
func (m *Manager) Halted(id ledger.ID) error {
	l, ok := m.leechers[id]
	if !ok {
		return nil
	}
	return l.Halted()
}

// LastOrdered3PC returns the most recent marker known to be ordered, across
// ledgers. It starts at (0, 0).
func (m *Manager) LastOrdered3PC() ledger.ThreePC {
	res := ledger.Ordered(0, 0)
	for _, tpc := range m.lastOrdered {
		if res.Less(tpc) {
			res = tpc
		}
	}
	return res
}

// LastOrdered3PCOf returns the last marker ordered on one ledger.
func (m *Manager) LastOrdered3PCOf(id ledger.ID) ledger.ThreePC {
	if tpc, ok := m.lastOrdered[id]; ok {
		return tpc
	}
	return ledger.Ordered(0, 0)
}

// SetLastOrdered3PC records a batch ordered outside catch-up.
func (m *Manager) SetLastOrdered3PC(id ledger.ID, tpc ledger.ThreePC) {
	if _, ok := m.ledgers[id]; !ok || !tpc.IsOrdered() {
		return
	}
	if m.lastOrdered[id].Less(tpc) {
		m.lastOrdered[id] = tpc
	}
}

// LedgerChanged must be called after txns are appended to a ledger outside
// catch-up; reports collected so far compared against its previous state.
func (m *Manager) LedgerChanged(id ledger.ID) {
	if l, ok := m.leechers[id]; ok {
		l.Service().Reset()
	}
}

// BuildLedgerStatus returns the LedgerStatus of a ledger. Its 3PC marker is
// that of the last audit entry, null when there is none.
func (m *Manager) BuildLedgerStatus(id ledger.ID) (*net.LedgerStatus, error) {
	l, ok := m.ledgers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLedger, id)
	}

	tpc, err := m.audit3PC()
	if err != nil {
		return nil, err
	}

	return net.NewLedgerStatus(id, l.Size(), tpc, l.Root(), m.conf.ProtocolVersion), nil
}

func (m *Manager) audit3PC() (ledger.ThreePC, error) {
	audit, ok := m.ledgers[ledger.AuditLedgerID].(AuditLedger)
	if !ok {
		return ledger.Unordered(), nil
	}
	entry, err := audit.LastAuditEntry()
	if err != nil {
		return ledger.Unordered(), err
	}
	if entry == nil {
		return ledger.Unordered(), nil
	}
	return entry.ThreePC(), nil
}

// ProcessRPC routes an inbound message to the Leecher and the Seeder of its
// ledger.
func (m *Manager) ProcessRPC(rpc net.RPC) error {
	id, ok := net.LedgerOf(rpc.Command)
	if !ok {
		return net.ErrUnknownCommand
	}

	if !m.peers.Contains(rpc.From) || rpc.From == m.self {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, rpc.From)
	}

	leecher, ok := m.leechers[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownLedger, id)
	}
	seeder := m.seeders[id]

	switch cmd := rpc.Command.(type) {
	case *net.LedgerStatusRequest:
		return seeder.ProcessLedgerStatusRequest(rpc.From)
	case *net.LedgerStatus:
		return errors.Join(
			leecher.ProcessLedgerStatus(cmd, rpc.From),
			seeder.ProcessLedgerStatus(cmd, rpc.From),
		)
	case *net.ConsistencyProofRequest:
		return seeder.ProcessConsistencyProofRequest(cmd, rpc.From)
	case *net.ConsistencyProof:
		return leecher.ProcessConsistencyProof(cmd, rpc.From)
	case *net.CatchupReq:
		return seeder.ProcessCatchupReq(cmd, rpc.From)
	case *net.CatchupRep:
		return leecher.ProcessCatchupRep(cmd, rpc.From)
	default:
		return net.ErrUnknownCommand
	}
}
