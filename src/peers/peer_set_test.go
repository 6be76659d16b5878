package peers

import (
	"fmt"
	"reflect"
	"testing"
)

func testPeerSet(n int) *PeerSet {
	peers := []*Peer{}
	for i := 0; i < n; i++ {
		peers = append(peers, NewPeer("", fmt.Sprintf("node%d", i), ""))
	}
	return NewPeerSet(peers)
}

func TestQuorums(t *testing.T) {
	cases := []struct {
		n, f, status, threePC int
	}{
		{1, 0, 0, 1},
		{4, 1, 2, 2},
		{5, 1, 3, 2},
		{6, 1, 4, 2},
		{7, 2, 4, 3},
		{10, 3, 6, 4},
		{13, 4, 8, 5},
	}

	for _, c := range cases {
		ps := testPeerSet(c.n)
		q := ps.Quorums()
		if ps.PoolSize() != c.n || ps.MaxFaulty() != c.f {
			t.Fatalf("N=%d: expected f=%d, got %d", c.n, c.f, ps.MaxFaulty())
		}
		if int(q.LedgerStatus) != c.status {
			t.Fatalf("N=%d: expected status quorum %d, got %d", c.n, c.status, q.LedgerStatus)
		}
		if int(q.LastOrdered3PC) != c.threePC || int(q.ConsistencyProof) != c.threePC {
			t.Fatalf("N=%d: expected f+1=%d, got %s", c.n, c.threePC, q)
		}
		if int(q.Strong) != c.n-c.f {
			t.Fatalf("N=%d: expected strong quorum %d", c.n, c.n-c.f)
		}
		if !q.LedgerStatus.IsReached(c.status) || (c.status > 0 && q.LedgerStatus.IsReached(c.status-1)) {
			t.Fatalf("N=%d: IsReached is off by one", c.n)
		}
	}
}

func TestPeerSetOthers(t *testing.T) {
	ps := testPeerSet(4)

	others := ps.Others("node2")
	addrs := []string{}
	for _, p := range others {
		addrs = append(addrs, p.NetAddr)
	}
	if !reflect.DeepEqual(addrs, []string{"node0", "node1", "node3"}) {
		t.Fatalf("unexpected others: %v", addrs)
	}

	if !ps.Contains("node3") || ps.Contains("node4") {
		t.Fatalf("Contains is wrong")
	}
}

func TestPeerSetDeduplicates(t *testing.T) {
	ps := NewPeerSet([]*Peer{
		NewPeer("", "a", ""),
		NewPeer("", "b", ""),
		NewPeer("", "a", "again"),
	})
	if ps.Len() != 2 {
		t.Fatalf("expected 2 peers, got %d", ps.Len())
	}
	if ps.ByNetAddr["a"].Moniker != "" {
		t.Fatalf("first occurrence should win")
	}
}
