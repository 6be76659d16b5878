package keys

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec"
)

// GenerateECDSAKey creates a new secp256k1 private key.
func GenerateECDSAKey() (*ecdsa.PrivateKey, error) {
	priv, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		return nil, err
	}
	return priv.ToECDSA(), nil
}

// DumpPrivateKey exports the D value of a private key as a 32 byte
// big-endian slice.
func DumpPrivateKey(priv *ecdsa.PrivateKey) []byte {
	if priv == nil {
		return nil
	}
	return (*btcec.PrivateKey)(priv).Serialize()
}

// ParsePrivateKey creates a private key from a D value produced by
// DumpPrivateKey.
func ParsePrivateKey(d []byte) (*ecdsa.PrivateKey, error) {
	if len(d) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("invalid length, need %d bytes", btcec.PrivKeyBytesLen)
	}

	priv, _ := btcec.PrivKeyFromBytes(btcec.S256(), d)

	if priv.D.Sign() <= 0 || priv.D.Cmp(btcec.S256().N) >= 0 {
		return nil, fmt.Errorf("invalid private key, out of range")
	}

	return priv.ToECDSA(), nil
}

// PrivateKeyHex returns the hexadecimal representation of DumpPrivateKey.
func PrivateKeyHex(key *ecdsa.PrivateKey) string {
	return hex.EncodeToString(DumpPrivateKey(key))
}
