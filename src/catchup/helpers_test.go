package catchup

import (
	"fmt"
	"testing"
	"time"

	cm "github.com/mosaicnetworks/ledgersync/src/common"
	"github.com/mosaicnetworks/ledgersync/src/crypto/merkle"
	"github.com/mosaicnetworks/ledgersync/src/ledger"
	"github.com/mosaicnetworks/ledgersync/src/net"
	"github.com/mosaicnetworks/ledgersync/src/peers"
	"github.com/stretchr/testify/require"
)

const testTimeout = time.Second

func testConfig() Config {
	return Config{
		LedgerStatusTimeout:     testTimeout,
		ConsistencyProofTimeout: testTimeout,
		CatchupTimeout:          testTimeout,
		CatchupBatchSize:        4,
		ProtocolVersion:         2,
	}
}

func nodeAddr(i int) string {
	return fmt.Sprintf("node%d", i)
}

func testPeerSet(n int) *peers.PeerSet {
	ps := make([]*peers.Peer, n)
	for i := range ps {
		ps[i] = peers.NewPeer("", nodeAddr(i), "")
	}
	return peers.NewPeerSet(ps)
}

type sentMsg struct {
	to  string
	cmd interface{}
}

type recordingSender struct {
	sent []sentMsg
}

func (r *recordingSender) Send(to string, cmd interface{}) error {
	r.sent = append(r.sent, sentMsg{to: to, cmd: cmd})
	return nil
}

// take returns and forgets the messages of one operation.
func (r *recordingSender) take(op string) []sentMsg {
	var res, rest []sentMsg
	for _, m := range r.sent {
		if net.Op(m.cmd) == op {
			res = append(res, m)
		} else {
			rest = append(rest, m)
		}
	}
	r.sent = rest
	return res
}

func testTxns(ledgerTag string, from, to int) [][]byte {
	res := [][]byte{}
	for i := from; i <= to; i++ {
		res = append(res, []byte(fmt.Sprintf("%s-txn-%d", ledgerTag, i)))
	}
	return res
}

func newTestLedger(t *testing.T, id ledger.ID, size int) *ledger.Ledger {
	l, err := ledger.NewLedger(id, ledger.NewInmemStore(), cm.NewTestEntry(t, cm.TestLogLevel))
	require.NoError(t, err)
	if size > 0 {
		require.NoError(t, l.Append(testTxns(id.String(), 1, size)))
	}
	return l
}

// orderBatches simulates the ordering of count batches of size txns on the
// domain ledger, each one recorded by an audit entry at (0, ppSeqNo).
func orderBatches(t *testing.T, audit, domain *ledger.Ledger, firstPPSeqNo, count, size int) {
	for b := firstPPSeqNo; b < firstPPSeqNo+count; b++ {
		from := int(domain.Size()) + 1
		require.NoError(t, domain.Append(testTxns("domain", from, from+size-1)))

		entry := &ledger.AuditEntry{
			ViewNo:      0,
			PPSeqNo:     uint64(b),
			LedgerID:    ledger.DomainLedgerID,
			LedgerSizes: map[ledger.ID]uint64{ledger.DomainLedgerID: domain.Size()},
			LedgerRoots: map[ledger.ID]string{ledger.DomainLedgerID: domain.Root()},
		}
		data, err := entry.Marshal()
		require.NoError(t, err)
		require.NoError(t, audit.Append([][]byte{data}))
	}
}

func ledgerStatus(l Ledger, tpc ledger.ThreePC) *net.LedgerStatus {
	return net.NewLedgerStatus(l.ID(), l.Size(), tpc, l.Root(), 2)
}

func uint64p(v uint64) *uint64 {
	return &v
}

// proofFrom builds the proof a node holding remote sends to a node at size
// start.
func proofFrom(t *testing.T, remote *ledger.Ledger, start uint64, tpc ledger.ThreePC) *net.ConsistencyProof {
	oldRoot, err := remote.RootAt(start)
	require.NoError(t, err)
	hashes, err := remote.ConsistencyProof(start, remote.Size())
	require.NoError(t, err)
	viewNo, ppSeqNo := tpc.Values()
	return &net.ConsistencyProof{
		LedgerID:      remote.ID(),
		SeqNoStart:    start,
		SeqNoEnd:      remote.Size(),
		ViewNo:        viewNo,
		PPSeqNo:       ppSeqNo,
		OldMerkleRoot: oldRoot,
		NewMerkleRoot: remote.Root(),
		Hashes:        merkle.EncodeHashes(hashes),
	}
}

// repFrom answers req from remote.
func repFrom(t *testing.T, remote *ledger.Ledger, req *net.CatchupReq) *net.CatchupRep {
	txns, err := remote.GetRange(req.SeqNoStart, req.SeqNoEnd)
	require.NoError(t, err)
	hashes, err := remote.ConsistencyProof(req.SeqNoEnd, req.CatchupTill)
	require.NoError(t, err)
	return &net.CatchupRep{
		LedgerID:    remote.ID(),
		SeqNoStart:  req.SeqNoStart,
		CatchupTill: req.CatchupTill,
		Txns:        txns,
		ConsProof:   merkle.EncodeHashes(hashes),
	}
}

// failingLedger accepts nothing.
type failingLedger struct {
	*ledger.Ledger
	err error
}

func (f *failingLedger) AppendAt(uint64, [][]byte) error {
	return f.err
}

// managerFixture is node0 of a pool of n nodes, with a manager whose
// messages are recorded.
type managerFixture struct {
	t       *testing.T
	peers   *peers.PeerSet
	sender  *recordingSender
	sched   *ManualScheduler
	manager *Manager

	synced    []ledger.ID
	allSynced int
	halted    map[ledger.ID]error
}

func newManagerFixture(t *testing.T, n int, ledgers ...Ledger) *managerFixture {
	f := &managerFixture{
		t:      t,
		peers:  testPeerSet(n),
		sender: &recordingSender{},
		sched:  NewManualScheduler(),
		halted: make(map[ledger.ID]error),
	}

	f.manager = NewManager(testConfig(), nodeAddr(0), f.peers, f.sender, f.sched,
		cm.NewTestEntry(t, cm.TestLogLevel))

	f.manager.OnLedgerSynced = func(id ledger.ID, _ ledger.ThreePC) {
		f.synced = append(f.synced, id)
	}
	f.manager.OnAllLedgersSynced = func() {
		f.allSynced++
	}
	f.manager.OnLedgerHalted = func(id ledger.ID, err error) {
		f.halted[id] = err
	}

	for _, l := range ledgers {
		require.NoError(t, f.manager.AddLedger(l))
	}
	return f
}

func (f *managerFixture) deliver(from int, cmd interface{}) error {
	return f.manager.ProcessRPC(net.RPC{From: nodeAddr(from), Command: cmd})
}

func (f *managerFixture) leecher(id ledger.ID) *Leecher {
	l, err := f.manager.Leecher(id)
	require.NoError(f.t, err)
	return l
}
