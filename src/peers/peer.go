package peers

import (
	"github.com/mosaicnetworks/ledgersync/src/common"
	"github.com/mosaicnetworks/ledgersync/src/crypto/keys"
)

// Peer is a member of the pool.
type Peer struct {
	NetAddr   string
	PubKeyHex string
	Moniker   string

	id uint32
}

// NewPeer is a factory method for creating a new Peer instance
func NewPeer(pubKeyHex, netAddr, moniker string) *Peer {
	peer := &Peer{
		PubKeyHex: pubKeyHex,
		NetAddr:   netAddr,
		Moniker:   moniker,
	}
	return peer
}

// ID returns an ID for the peer, derived from the public key. Peers with an
// unreadable key fall back to a hash of their address.
func (p *Peer) ID() uint32 {
	if p.id == 0 {
		pubKey, err := p.PubKeyBytes()
		if err != nil || len(pubKey) == 0 {
			p.id = common.Hash32([]byte(p.NetAddr))
		} else {
			p.id = keys.PublicKeyID(pubKey)
		}
	}
	return p.id
}

// PubKeyBytes decodes the 0X prefixed hexadecimal public key.
func (p *Peer) PubKeyBytes() ([]byte, error) {
	return common.DecodeFromString(p.PubKeyHex)
}

// Name is the moniker if set, the address otherwise.
func (p *Peer) Name() string {
	if p.Moniker != "" {
		return p.Moniker
	}
	return p.NetAddr
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, peer string) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.NetAddr != peer {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
