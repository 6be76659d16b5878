package ledger

import (
	"bytes"
	"path/filepath"
	"testing"

	cm "github.com/mosaicnetworks/ledgersync/src/common"
	"github.com/mosaicnetworks/ledgersync/src/crypto/merkle"
)

func newTestLedger(t *testing.T, id ID, store Store) *Ledger {
	l, err := NewLedger(id, store, cm.NewTestEntry(t, cm.TestLogLevel))
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestLedgerAppend(t *testing.T) {
	l := newTestLedger(t, DomainLedgerID, NewInmemStore())

	if l.Size() != 0 {
		t.Fatalf("expected empty ledger")
	}
	if l.Root() != merkle.EncodeRoot(merkle.EmptyRoot()) {
		t.Fatalf("empty ledger should have the empty root")
	}

	txns, leaves := testTxns(1, 10)
	if err := l.Append(txns[:4]); err != nil {
		t.Fatal(err)
	}
	if err := l.AppendAt(5, txns[4:]); err != nil {
		t.Fatal(err)
	}

	if l.Size() != 10 {
		t.Fatalf("expected size 10, got %d", l.Size())
	}
	if !bytes.Equal(l.RootHash(), merkle.RootOf(leaves)) {
		t.Fatalf("root differs from full tree root")
	}

	if err := l.AppendAt(12, txns[:1]); !cm.IsStore(err, cm.SkippedIndex) {
		t.Fatalf("expected SkippedIndex, got %v", err)
	}
	if l.Size() != 10 {
		t.Fatalf("a failed append must not change the ledger")
	}

	rng, err := l.GetRange(3, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(rng) != 3 || !bytes.Equal(rng[0], txns[2]) || !bytes.Equal(rng[2], txns[4]) {
		t.Fatalf("unexpected range")
	}
	if _, err := l.GetRange(5, 3); err == nil {
		t.Fatalf("inverted range should fail")
	}

	last, err := l.LastCommitted()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(last, txns[9]) {
		t.Fatalf("unexpected last committed txn")
	}
}

func TestLedgerProofs(t *testing.T) {
	l := newTestLedger(t, DomainLedgerID, NewInmemStore())
	txns, leaves := testTxns(1, 13)
	if err := l.Append(txns); err != nil {
		t.Fatal(err)
	}

	for _, start := range []uint64{0, 1, 4, 7, 13} {
		oldRoot, err := l.RootAt(start)
		if err != nil {
			t.Fatal(err)
		}
		if oldRoot != merkle.EncodeRoot(merkle.RootOf(leaves[:start])) {
			t.Fatalf("RootAt(%d) differs", start)
		}

		proof, err := l.ConsistencyProof(start, 13)
		if err != nil {
			t.Fatal(err)
		}

		old, _ := merkle.DecodeRoot(oldRoot)
		if err := merkle.VerifyConsistency(start, 13, old, l.RootHash(), proof); err != nil {
			t.Fatalf("proof from %d: %v", start, err)
		}
	}

	if _, err := l.RootAt(14); err == nil {
		t.Fatalf("RootAt beyond size should fail")
	}
}

// countingStore counts the leaf hashes read from the wrapped store.
type countingStore struct {
	*InmemStore
	leafReads int
}

func (c *countingStore) GetLeafHash(id ID, seqNo uint64) ([]byte, error) {
	c.leafReads++
	return c.InmemStore.GetLeafHash(id, seqNo)
}

func TestLedgerProofsDoNotReadStore(t *testing.T) {
	store := &countingStore{InmemStore: NewInmemStore()}
	l := newTestLedger(t, DomainLedgerID, store)

	txns, leaves := testTxns(1, 20)
	for i := 0; i < 20; i += 4 {
		if err := l.Append(txns[i : i+4]); err != nil {
			t.Fatal(err)
		}
	}

	// serve a catch-up of the whole ledger in batches of 4
	for end := uint64(4); end <= 20; end += 4 {
		if _, err := l.RootAt(end); err != nil {
			t.Fatal(err)
		}
		if _, err := l.ConsistencyProof(end, 20); err != nil {
			t.Fatal(err)
		}
	}
	if store.leafReads != 0 {
		t.Fatalf("proofs should not read the store, %d leaf reads", store.leafReads)
	}

	// reopening reads each leaf once
	reopened := newTestLedger(t, DomainLedgerID, store)
	if store.leafReads != 20 {
		t.Fatalf("reopening should read 20 leaves, not %d", store.leafReads)
	}

	root, err := reopened.RootAt(9)
	if err != nil {
		t.Fatal(err)
	}
	if root != merkle.EncodeRoot(merkle.RootOf(leaves[:9])) {
		t.Fatalf("RootAt(9) differs after reopening")
	}
	if err := reopened.Append(txns[:1]); err != nil {
		t.Fatal(err)
	}
	if _, err := reopened.ConsistencyProof(20, 21); err != nil {
		t.Fatal(err)
	}
	if store.leafReads != 20 {
		t.Fatalf("proofs after reopening should not read the store")
	}
}

func TestLedgerFrontierIsACopy(t *testing.T) {
	l := newTestLedger(t, PoolLedgerID, NewInmemStore())
	txns, _ := testTxns(1, 3)
	l.Append(txns)

	f := l.Frontier()
	f.AppendData([]byte("not in ledger"))

	if l.Size() != 3 {
		t.Fatalf("extending the frontier copy changed the ledger")
	}
}

func TestLedgerRebuildsFrontier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badger")
	store := openStore(t, BadgerBackend, path)

	l := newTestLedger(t, ConfigLedgerID, store)
	txns, _ := testTxns(1, 7)
	if err := l.Append(txns); err != nil {
		t.Fatal(err)
	}
	root := l.Root()
	store.Close()

	store = openStore(t, BadgerBackend, path)
	defer store.Close()

	l = newTestLedger(t, ConfigLedgerID, store)
	if l.Size() != 7 || l.Root() != root {
		t.Fatalf("expected (7, %s), got (%d, %s)", root, l.Size(), l.Root())
	}
}

func TestLastAuditEntry(t *testing.T) {
	l := newTestLedger(t, AuditLedgerID, NewInmemStore())

	entry, err := l.LastAuditEntry()
	if err != nil || entry != nil {
		t.Fatalf("empty audit ledger should yield nil, nil; got %v, %v", entry, err)
	}

	if _, err := l.LastCommitted(); !cm.IsStore(err, cm.Empty) {
		t.Fatalf("expected Empty, got %v", err)
	}

	for i, tpc := range []ThreePC{Ordered(0, 1), Ordered(1, 5)} {
		v, p := tpc.Values()
		data, _ := (&AuditEntry{ViewNo: v, PPSeqNo: p, LedgerSizes: map[ID]uint64{DomainLedgerID: uint64(i)}}).Marshal()
		if err := l.Append([][]byte{data}); err != nil {
			t.Fatal(err)
		}
	}

	entry, err = l.LastAuditEntry()
	if err != nil {
		t.Fatal(err)
	}
	if entry.ThreePC() != Ordered(1, 5) {
		t.Fatalf("expected (1, 5), got %s", entry.ThreePC())
	}
}
