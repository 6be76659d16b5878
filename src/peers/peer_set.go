package peers

import (
	"bytes"
	"encoding/json"
)

// PeerSet is the set of Peers forming a pool.
type PeerSet struct {
	Peers     []*Peer          `json:"peers"`
	ByNetAddr map[string]*Peer `json:"-"`
	ByID      map[uint32]*Peer `json:"-"`
}

/* Constructors */

// NewPeerSet creates a new PeerSet from a list of Peers. Duplicate addresses
// are only counted once.
func NewPeerSet(peers []*Peer) *PeerSet {
	peerSet := &PeerSet{
		ByNetAddr: make(map[string]*Peer),
		ByID:      make(map[uint32]*Peer),
	}

	for _, peer := range peers {
		if _, ok := peerSet.ByNetAddr[peer.NetAddr]; ok {
			continue
		}
		peerSet.ByNetAddr[peer.NetAddr] = peer
		peerSet.ByID[peer.ID()] = peer
		peerSet.Peers = append(peerSet.Peers, peer)
	}

	return peerSet
}

/* ToSlice Methods */

// NetAddrs returns the addresses of the peers, in order.
func (peerSet *PeerSet) NetAddrs() []string {
	res := make([]string, 0, len(peerSet.Peers))
	for _, peer := range peerSet.Peers {
		res = append(res, peer.NetAddr)
	}
	return res
}

// Others returns every peer but self.
func (peerSet *PeerSet) Others(self string) []*Peer {
	_, others := ExcludePeer(peerSet.Peers, self)
	return others
}

/* Utilities */

// Len returns the number of Peers in the PeerSet
func (peerSet *PeerSet) Len() int {
	return len(peerSet.Peers)
}

// Contains reports whether netAddr belongs to the pool.
func (peerSet *PeerSet) Contains(netAddr string) bool {
	_, ok := peerSet.ByNetAddr[netAddr]
	return ok
}

// PoolSize returns N.
func (peerSet *PeerSet) PoolSize() int {
	return peerSet.Len()
}

// MaxFaulty returns f, the number of byzantine members tolerated.
func (peerSet *PeerSet) MaxFaulty() int {
	return MaxFaulty(peerSet.Len())
}

// Quorums returns the thresholds for this pool.
func (peerSet *PeerSet) Quorums() Quorums {
	return NewQuorums(peerSet.Len())
}

// Marshal marshals the peers to JSON
func (peerSet *PeerSet) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(peerSet.Peers); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
