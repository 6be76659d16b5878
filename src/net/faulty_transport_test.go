package net

import (
	"testing"

	"github.com/mosaicnetworks/ledgersync/src/ledger"
)

func drain(trans Transport) []RPC {
	res := []RPC{}
	for {
		select {
		case rpc := <-trans.Consumer():
			res = append(res, rpc)
		default:
			return res
		}
	}
}

func TestFaultyTransport(t *testing.T) {
	_, a := NewInmemTransport("a")
	_, b := NewInmemTransport("b")
	_, victim := NewInmemTransport("victim")

	faulty := NewFaultyTransport(victim)
	a.Connect("victim", faulty)
	b.Connect("victim", faulty)

	fromA := faulty.AddRule(&FaultRule{Op: LedgerStatusOp, From: "a", Count: 2})
	proofs := faulty.AddRule(&FaultRule{Op: ConsistencyProofOp, Skip: 1, Count: 1})

	status := &LedgerStatus{LedgerID: ledger.DomainLedgerID}
	proof := &ConsistencyProof{LedgerID: ledger.DomainLedgerID}

	for i := 0; i < 3; i++ {
		a.Send("victim", status)
		b.Send("victim", status)
	}
	for i := 0; i < 3; i++ {
		a.Send("victim", proof)
	}

	got := drain(victim)

	statuses := map[string]int{}
	nproofs := 0
	for _, rpc := range got {
		switch rpc.Command.(type) {
		case *LedgerStatus:
			statuses[rpc.From]++
		case *ConsistencyProof:
			nproofs++
		}
	}

	if statuses["a"] != 1 || statuses["b"] != 3 {
		t.Fatalf("expected 1 status from a and 3 from b, got %v", statuses)
	}
	if nproofs != 2 {
		t.Fatalf("expected 2 proofs, got %d", nproofs)
	}
	if fromA.Lost() != 2 || fromA.Matched() != 3 {
		t.Fatalf("rule on a: lost %d matched %d", fromA.Lost(), fromA.Matched())
	}
	if proofs.Lost() != 1 || faulty.Lost() != 3 {
		t.Fatalf("unexpected counters: %d %d", proofs.Lost(), faulty.Lost())
	}
}

func TestFaultyTransportHold(t *testing.T) {
	_, a := NewInmemTransport("a")
	_, victim := NewInmemTransport("victim")

	faulty := NewFaultyTransport(victim)
	a.Connect("victim", faulty)

	faulty.AddRule(&FaultRule{Op: CatchupRepOp, Count: 1, Hold: true})

	a.Send("victim", &CatchupRep{SeqNoStart: 1})
	a.Send("victim", &CatchupRep{SeqNoStart: 2})

	got := drain(victim)
	if len(got) != 1 || got[0].Command.(*CatchupRep).SeqNoStart != 2 {
		t.Fatalf("expected only the second reply to go through")
	}

	if n := faulty.Release(); n != 1 {
		t.Fatalf("expected 1 held reply, got %d", n)
	}
	got = drain(victim)
	if len(got) != 1 || got[0].Command.(*CatchupRep).SeqNoStart != 1 {
		t.Fatalf("expected the first reply after release")
	}
}
