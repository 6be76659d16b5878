package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mosaicnetworks/ledgersync/src/catchup"
	"github.com/mosaicnetworks/ledgersync/src/common"
	"github.com/mosaicnetworks/ledgersync/src/ledger"
	"github.com/mosaicnetworks/ledgersync/src/node"
	"github.com/mosaicnetworks/ledgersync/src/peers"
)

type fakeNode struct {
	ledgers []node.LedgerInfo
	down    bool
}

func (f *fakeNode) GetStats() (map[string]string, error) {
	if f.down {
		return nil, node.ErrShutdown
	}
	return map[string]string{"state": "Participating"}, nil
}

func (f *fakeNode) GetLedgers() ([]node.LedgerInfo, error) {
	return f.ledgers, nil
}

func (f *fakeNode) GetLedger(id ledger.ID) (node.LedgerInfo, error) {
	for _, l := range f.ledgers {
		if l.ID == id {
			return l, nil
		}
	}
	return node.LedgerInfo{}, fmt.Errorf("%w: %s", catchup.ErrUnknownLedger, id)
}

func (f *fakeNode) GetPeers() []*peers.Peer {
	return []*peers.Peer{peers.NewPeer("", "node0", "alice")}
}

func newTestService(t *testing.T, n Node) http.Handler {
	return NewService("", n, common.NewTestEntry(t, common.TestLogLevel)).Handler()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetLedger(t *testing.T) {
	n := &fakeNode{
		ledgers: []node.LedgerInfo{
			{ID: ledger.AuditLedgerID, Name: "Audit", Size: 3, SyncState: "synced"},
			{ID: ledger.DomainLedgerID, Name: "Domain", Size: 7, SyncState: "syncing"},
		},
	}
	h := newTestService(t, n)

	for _, path := range []string{"/ledgers/1", "/ledgers/domain", "/ledgers/Domain"} {
		rec := get(t, h, path)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, rec.Code)
		}

		var info node.LedgerInfo
		if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
			t.Fatal(err)
		}
		if info.Size != 7 || info.SyncState != "syncing" {
			t.Fatalf("%s: unexpected ledger %+v", path, info)
		}
	}

	if rec := get(t, h, "/ledgers/pool"); rec.Code != http.StatusNotFound {
		t.Fatalf("unregistered ledger should be 404, got %d", rec.Code)
	}
	if rec := get(t, h, "/ledgers/foo"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown ledger should be 404, got %d", rec.Code)
	}
}

func TestGetLedgers(t *testing.T) {
	n := &fakeNode{
		ledgers: []node.LedgerInfo{
			{ID: ledger.AuditLedgerID, Name: "Audit"},
			{ID: ledger.DomainLedgerID, Name: "Domain"},
		},
	}

	rec := get(t, newTestService(t, n), "/ledgers")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type should be application/json, got %s", ct)
	}

	var res []node.LedgerInfo
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 || res[0].Name != "Audit" {
		t.Fatalf("unexpected ledgers %+v", res)
	}
}

func TestGetStats(t *testing.T) {
	n := &fakeNode{}
	h := newTestService(t, n)

	rec := get(t, h, "/stats")
	var stats map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats["state"] != "Participating" {
		t.Fatalf("unexpected stats %v", stats)
	}

	n.down = true
	if rec := get(t, h, "/stats"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("stopped node should be 503, got %d", rec.Code)
	}
}

func TestGetPeers(t *testing.T) {
	rec := get(t, newTestService(t, &fakeNode{}), "/peers")

	var res []*peers.Peer
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].NetAddr != "node0" {
		t.Fatalf("unexpected peers %+v", res)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("CORS header missing")
	}
}
