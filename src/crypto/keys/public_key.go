package keys

import (
	"crypto/ecdsa"

	"github.com/btcsuite/btcd/btcec"
	"github.com/mosaicnetworks/ledgersync/src/common"
)

// FromPublicKey returns the uncompressed form of the public key.
func FromPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return (*btcec.PublicKey)(pub).SerializeUncompressed()
}

// ToPublicKey parses a public key serialized by FromPublicKey.
func ToPublicKey(pub []byte) (*ecdsa.PublicKey, error) {
	pk, err := btcec.ParsePubKey(pub, btcec.S256())
	if err != nil {
		return nil, err
	}
	return pk.ToECDSA(), nil
}

// PublicKeyHex returns the 0X prefixed hexadecimal representation of the
// uncompressed public key, which is how peers are listed in peers.json.
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return common.EncodeToString(FromPublicKey(pub))
}

// PublicKeyID derives a short identifier from a serialized public key. It is
// only used for display; collisions are possible.
func PublicKeyID(pubBytes []byte) uint32 {
	return common.Hash32(pubBytes)
}
