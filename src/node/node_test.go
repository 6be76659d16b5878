package node

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mosaicnetworks/ledgersync/src/catchup"
	"github.com/mosaicnetworks/ledgersync/src/common"
	"github.com/mosaicnetworks/ledgersync/src/config"
	"github.com/mosaicnetworks/ledgersync/src/crypto/keys"
	"github.com/mosaicnetworks/ledgersync/src/ledger"
	"github.com/mosaicnetworks/ledgersync/src/net"
	"github.com/mosaicnetworks/ledgersync/src/node/state"
	"github.com/mosaicnetworks/ledgersync/src/peers"
)

type testPool struct {
	validators []*Validator
	peers      *peers.PeerSet
	transports []*net.InmemTransport
}

func initPool(t *testing.T, n int) *testPool {
	p := &testPool{}

	var ps []*peers.Peer
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			t.Fatal(err)
		}
		v := NewValidator(key, fmt.Sprintf("node%d", i))
		p.validators = append(p.validators, v)
		ps = append(ps, v.Peer(fmt.Sprintf("node%d", i)))
	}
	p.peers = peers.NewPeerSet(ps)
	p.transports = make([]*net.InmemTransport, n)

	return p
}

func testConfig(t *testing.T) *config.Config {
	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.LedgerStatusTimeout = 200 * time.Millisecond
	conf.ConsistencyProofTimeout = 200 * time.Millisecond
	conf.CatchupTimeout = 200 * time.Millisecond
	conf.CatchupBatchSize = 2
	return conf
}

// newNode creates node i and connects it to the nodes created before.
func (p *testPool) newNode(t *testing.T, i int) *Node {
	return p.newNodeWithStore(t, i, ledger.NewInmemStore())
}

func (p *testPool) newNodeWithStore(t *testing.T, i int, store ledger.Store) *Node {
	addr, trans := net.NewInmemTransport(p.peers.Peers[i].NetAddr)

	for j, other := range p.transports {
		if other == nil || j == i {
			continue
		}
		trans.Connect(other.LocalAddr(), other)
		other.Connect(addr, trans)
	}
	p.transports[i] = trans

	node, err := NewNode(testConfig(t), p.validators[i], p.peers, store, trans)
	if err != nil {
		t.Fatalf("failed to create node%d: %s", i, err)
	}

	return node
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitParticipating(t *testing.T, nodes ...*Node) {
	for _, n := range nodes {
		waitFor(t, 5*time.Second, n.Addr()+" to participate", func() bool {
			return n.GetState() == state.Participating
		})
	}
}

func shutdownNodes(nodes []*Node) {
	for _, n := range nodes {
		n.Shutdown()
	}
}

func commitAll(t *testing.T, nodes []*Node, id ledger.ID, ppSeqNo uint64, txns [][]byte) {
	for _, n := range nodes {
		if err := n.Commit(id, 0, ppSeqNo, txns); err != nil {
			t.Fatalf("%s: commit (0, %d): %s", n.Addr(), ppSeqNo, err)
		}
	}
}

func batch(ppSeqNo, size int) [][]byte {
	res := [][]byte{}
	for i := 0; i < size; i++ {
		res = append(res, []byte(fmt.Sprintf("batch-%d-txn-%d", ppSeqNo, i)))
	}
	return res
}

func TestNewNodeOutsidePool(t *testing.T) {
	p := initPool(t, 4)

	_, trans := net.NewInmemTransport("stranger")
	_, err := NewNode(testConfig(t), p.validators[0], p.peers, ledger.NewInmemStore(), trans)
	if err == nil {
		t.Fatal("a node outside the pool should be refused")
	}
}

func TestCatchupAndCommit(t *testing.T) {
	p := initPool(t, 4)

	var nodes []*Node
	for i := 1; i < 4; i++ {
		nodes = append(nodes, p.newNode(t, i))
	}
	defer func() { shutdownNodes(nodes) }()

	for _, n := range nodes {
		n.RunAsync()
	}
	waitParticipating(t, nodes...)

	commitAll(t, nodes, ledger.DomainLedgerID, 1, batch(1, 3))
	commitAll(t, nodes, ledger.DomainLedgerID, 2, batch(2, 2))
	commitAll(t, nodes, ledger.ConfigLedgerID, 3, batch(3, 1))

	// node0 joins late, with empty ledgers
	node0 := p.newNode(t, 0)
	nodes = append(nodes, node0)
	node0.RunAsync()
	waitParticipating(t, node0)

	for _, id := range ledger.AllIDs {
		mine, _ := node0.Ledger(id)
		theirs, _ := nodes[0].Ledger(id)
		if mine.Size() != theirs.Size() {
			t.Fatalf("%s ledger size should be %d, not %d", id, theirs.Size(), mine.Size())
		}
		if mine.Root() != theirs.Root() {
			t.Fatalf("%s ledger roots differ", id)
		}
	}

	domain, _ := node0.Ledger(ledger.DomainLedgerID)
	if domain.Size() != 5 {
		t.Fatalf("domain ledger should have 5 txns, not %d", domain.Size())
	}

	stats, err := node0.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats["last_ordered_3pc"] != "(0, 3)" {
		t.Fatalf("last ordered 3PC should be (0, 3), not %s", stats["last_ordered_3pc"])
	}
	if stats["synced_ledgers"] != "4/4" {
		t.Fatalf("every ledger should be synced, got %s", stats["synced_ledgers"])
	}

	// node0 now orders with the others
	commitAll(t, nodes, ledger.DomainLedgerID, 4, batch(4, 2))
	audit0, _ := node0.Ledger(ledger.AuditLedgerID)
	audit1, _ := nodes[0].Ledger(ledger.AuditLedgerID)
	if audit0.Root() != audit1.Root() {
		t.Fatal("audit ledgers differ after a common commit")
	}
}

func TestCommitWhileCatchingUp(t *testing.T) {
	p := initPool(t, 4)

	node := p.newNode(t, 0)
	defer node.Shutdown()
	node.RunAsync()

	// alone in the pool, the node never reaches a quorum
	err := node.Commit(ledger.DomainLedgerID, 0, 1, batch(1, 1))
	if !errors.Is(err, ErrCatchingUp) {
		t.Fatalf("commit should fail with ErrCatchingUp, got %v", err)
	}

	info, err := node.GetLedger(ledger.DomainLedgerID)
	if err != nil {
		t.Fatal(err)
	}
	if info.SyncState != "not_synced" || info.Size != 0 {
		t.Fatalf("unexpected ledger info %+v", info)
	}
}

func TestCommitValidation(t *testing.T) {
	p := initPool(t, 4)

	var nodes []*Node
	for i := 0; i < 4; i++ {
		nodes = append(nodes, p.newNode(t, i))
	}
	defer shutdownNodes(nodes)

	for _, n := range nodes {
		n.RunAsync()
	}
	waitParticipating(t, nodes...)

	node := nodes[0]

	if err := node.Commit(ledger.DomainLedgerID, 0, 1, batch(1, 2)); err != nil {
		t.Fatal(err)
	}

	err := node.Commit(ledger.DomainLedgerID, 0, 1, batch(1, 2))
	if !errors.Is(err, ErrAlreadyOrdered) {
		t.Fatalf("replayed batch should fail with ErrAlreadyOrdered, got %v", err)
	}

	if err := node.Commit(ledger.AuditLedgerID, 0, 2, batch(2, 1)); err == nil {
		t.Fatal("audit ledger should not accept commits")
	}

	ledgers, err := node.GetLedgers()
	if err != nil {
		t.Fatal(err)
	}
	if len(ledgers) != 4 || ledgers[0].ID != ledger.AuditLedgerID {
		t.Fatalf("ledgers should be listed audit first: %+v", ledgers)
	}
	for _, info := range ledgers {
		switch info.ID {
		case ledger.DomainLedgerID:
			if info.Size != 2 || info.LastOrdered != "(0, 1)" {
				t.Fatalf("unexpected domain ledger %+v", info)
			}
		case ledger.AuditLedgerID:
			if info.Size != 1 {
				t.Fatalf("audit ledger should have 1 entry, not %d", info.Size)
			}
		}
	}

	audit, _ := node.Ledger(ledger.AuditLedgerID)
	entry, err := audit.LastAuditEntry()
	if err != nil {
		t.Fatal(err)
	}
	domain, _ := node.Ledger(ledger.DomainLedgerID)
	if entry.LedgerSizes[ledger.DomainLedgerID] != 2 || entry.LedgerRoots[ledger.DomainLedgerID] != domain.Root() {
		t.Fatalf("audit entry should record the domain ledger: %+v", entry)
	}
}

func TestRestart(t *testing.T) {
	p := initPool(t, 4)

	var nodes []*Node
	for i := 0; i < 4; i++ {
		nodes = append(nodes, p.newNode(t, i))
	}
	defer shutdownNodes(nodes)

	for _, n := range nodes {
		n.RunAsync()
	}
	waitParticipating(t, nodes...)

	// watch what node0 sends to node1
	watch := net.NewFaultyTransport(p.transports[1])
	requests := watch.AddRule(&net.FaultRule{Op: net.LedgerStatusRequestOp})
	statuses := watch.AddRule(&net.FaultRule{Op: net.LedgerStatusOp})
	p.transports[0].Connect(p.transports[1].LocalAddr(), watch)

	if err := nodes[0].Restart(); err != nil {
		t.Fatal(err)
	}

	// one request and one status per ledger, sent before Restart returns
	if requests.Matched() < len(ledger.AllIDs) {
		t.Fatalf("restart should ask peers for their statuses, %d requests", requests.Matched())
	}
	if statuses.Matched() < len(ledger.AllIDs) {
		t.Fatalf("restart should broadcast its statuses, %d sent", statuses.Matched())
	}
	if requests.Lost() != 0 || statuses.Lost() != 0 {
		t.Fatal("nothing should be lost")
	}

	waitParticipating(t, nodes[0])
}

// failingStore refuses to write the audit ledger once failAudit is set.
type failingStore struct {
	*ledger.InmemStore
	failAudit atomic.Bool
}

var errDiskFull = errors.New("disk full")

func (s *failingStore) Append(id ledger.ID, startSeqNo uint64, txns, leafHashes [][]byte) error {
	if id == ledger.AuditLedgerID && s.failAudit.Load() {
		return errDiskFull
	}
	return s.InmemStore.Append(id, startSeqNo, txns, leafHashes)
}

func TestCommitAuditStorageFailure(t *testing.T) {
	p := initPool(t, 4)

	store := &failingStore{InmemStore: ledger.NewInmemStore()}

	var nodes []*Node
	nodes = append(nodes, p.newNodeWithStore(t, 0, store))
	for i := 1; i < 4; i++ {
		nodes = append(nodes, p.newNode(t, i))
	}
	defer shutdownNodes(nodes)

	node := nodes[0]
	halted := make(chan ledger.ID, 4)
	node.catchup.OnLedgerHalted = func(id ledger.ID, err error) {
		halted <- id
	}

	for _, n := range nodes {
		n.RunAsync()
	}
	waitParticipating(t, nodes...)

	store.failAudit.Store(true)

	err := node.Commit(ledger.DomainLedgerID, 0, 1, batch(1, 2))
	var serr *catchup.StorageError
	if !errors.As(err, &serr) || serr.LedgerID != ledger.AuditLedgerID || !errors.Is(err, errDiskFull) {
		t.Fatalf("commit should fail with a StorageError on the audit ledger, got %v", err)
	}

	select {
	case id := <-halted:
		if id != ledger.AuditLedgerID {
			t.Fatalf("audit ledger should be halted, not %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("audit ledger was not halted")
	}

	info, err := node.GetLedger(ledger.AuditLedgerID)
	if err != nil {
		t.Fatal(err)
	}
	if info.Halted == "" || info.LeecherState != "Halted" || info.Size != 0 {
		t.Fatalf("unexpected audit ledger %+v", info)
	}

	// the batch reached the domain ledger but was never ordered
	domain, err := node.GetLedger(ledger.DomainLedgerID)
	if err != nil {
		t.Fatal(err)
	}
	if domain.Size != 2 || domain.LastOrdered != "(0, 0)" {
		t.Fatalf("unexpected domain ledger %+v", domain)
	}

	// later commits are refused while the audit ledger is halted
	store.failAudit.Store(false)
	err = node.Commit(ledger.ConfigLedgerID, 0, 2, batch(2, 1))
	if err == nil || !errors.As(err, &serr) {
		t.Fatalf("commit on a halted node should fail, got %v", err)
	}
	configLedger, _ := node.Ledger(ledger.ConfigLedgerID)
	if configLedger.Size() != 0 {
		t.Fatal("nothing should be appended once the audit ledger is halted")
	}
}

func TestShutdown(t *testing.T) {
	p := initPool(t, 4)

	node := p.newNode(t, 0)
	node.RunAsync()
	node.Shutdown()

	if node.GetState() != state.Shutdown {
		t.Fatalf("state should be Shutdown, not %s", node.GetState())
	}
	if err := node.Commit(ledger.DomainLedgerID, 0, 1, batch(1, 1)); !errors.Is(err, ErrShutdown) {
		t.Fatalf("commit should fail with ErrShutdown, got %v", err)
	}
	if _, err := node.GetStats(); !errors.Is(err, ErrShutdown) {
		t.Fatalf("GetStats should fail with ErrShutdown, got %v", err)
	}

	// a second call is a no-op
	node.Shutdown()
}
