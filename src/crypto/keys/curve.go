package keys

import (
	"crypto/elliptic"

	"github.com/btcsuite/btcd/btcec"
)

// Curve returns the secp256k1 curve, as implemented by btcsuite.
func Curve() elliptic.Curve {
	return btcec.S256()
}
