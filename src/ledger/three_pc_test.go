package ledger

import (
	"testing"
)

func TestThreePCNullable(t *testing.T) {
	v, p := uint64(2), uint64(20)

	tpc, err := FromNullable(&v, &p)
	if err != nil {
		t.Fatal(err)
	}
	if tpc != Ordered(2, 20) {
		t.Fatalf("expected (2, 20), got %s", tpc)
	}

	tpc, err = FromNullable(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if tpc != Unordered() {
		t.Fatalf("expected unordered, got %s", tpc)
	}
	if vn, pn := tpc.Nullable(); vn != nil || pn != nil {
		t.Fatalf("unordered should have null fields")
	}

	if _, err := FromNullable(&v, nil); err != ErrMalformedThreePC {
		t.Fatalf("expected ErrMalformedThreePC, got %v", err)
	}
	if _, err := FromNullable(nil, &p); err != ErrMalformedThreePC {
		t.Fatalf("expected ErrMalformedThreePC, got %v", err)
	}
}

func TestThreePCAsKey(t *testing.T) {
	tally := map[ThreePC]int{}
	tally[Ordered(1, 10)]++
	tally[Ordered(1, 10)]++
	tally[Unordered()]++
	tally[Ordered(0, 0)]++

	if len(tally) != 3 {
		t.Fatalf("expected 3 distinct keys, got %d", len(tally))
	}
	if tally[Ordered(1, 10)] != 2 {
		t.Fatalf("expected 2 reports for (1, 10)")
	}

	// Unordered and (0, 0) share their values but are different keys
	if v, p := Unordered().Values(); v != 0 || p != 0 {
		t.Fatalf("unordered values should be (0, 0)")
	}
	if _, _, ok := Unordered().Get(); ok {
		t.Fatalf("unordered should not be ok")
	}
}

func TestThreePCLess(t *testing.T) {
	ordered := []ThreePC{Unordered(), Ordered(0, 0), Ordered(0, 5), Ordered(1, 1), Ordered(2, 0)}
	for i := 1; i < len(ordered); i++ {
		if !ordered[i-1].Less(ordered[i]) {
			t.Fatalf("%s should be less than %s", ordered[i-1], ordered[i])
		}
		if ordered[i].Less(ordered[i-1]) {
			t.Fatalf("%s should not be less than %s", ordered[i], ordered[i-1])
		}
	}
}

func TestParseID(t *testing.T) {
	cases := map[string]ID{"0": PoolLedgerID, "1": DomainLedgerID, "Config": ConfigLedgerID, "Audit": AuditLedgerID, "domain": DomainLedgerID}
	for s, exp := range cases {
		id, err := ParseID(s)
		if err != nil {
			t.Fatalf("%s: %v", s, err)
		}
		if id != exp {
			t.Fatalf("%s: expected %s, got %s", s, exp, id)
		}
	}
	if _, err := ParseID("4"); err == nil {
		t.Fatalf("4 is not a ledger")
	}
	if _, err := ParseID("foo"); err == nil {
		t.Fatalf("foo is not a ledger")
	}
}

func TestAuditEntryCanonical(t *testing.T) {
	entry := &AuditEntry{
		ViewNo:      3,
		PPSeqNo:     40,
		LedgerID:    DomainLedgerID,
		LedgerSizes: map[ID]uint64{PoolLedgerID: 4, DomainLedgerID: 12, ConfigLedgerID: 0},
		LedgerRoots: map[ID]string{DomainLedgerID: "root"},
	}

	first, err := entry.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, _ := entry.Marshal()
		if string(again) != string(first) {
			t.Fatalf("encoding is not deterministic")
		}
	}

	decoded, err := DecodeAuditEntry(first)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.ThreePC() != Ordered(3, 40) || decoded.LedgerSizes[DomainLedgerID] != 12 {
		t.Fatalf("decoded entry differs: %+v", decoded)
	}
}
