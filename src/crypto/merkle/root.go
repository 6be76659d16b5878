package merkle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

const (
	// RootLengthMin and RootLengthMax bound the length of a base-58 encoded
	// 32 byte digest.
	RootLengthMin = 43
	RootLengthMax = 45

	// Alphabet is the bitcoin base-58 alphabet. It excludes 0, O, I and l.
	Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
)

var (
	ErrInvalidLength   = errors.New("invalid merkle root length")
	ErrInvalidAlphabet = errors.New("invalid merkle root alphabet")
)

// Validate checks that candidate looks like an encoded root. A candidate
// breaking both rules reports both errors; use errors.Is to tell them apart.
func Validate(candidate string) error {
	var errs []error

	if len(candidate) < RootLengthMin || len(candidate) > RootLengthMax {
		errs = append(errs, fmt.Errorf("%w: %d not in [%d, %d]",
			ErrInvalidLength, len(candidate), RootLengthMin, RootLengthMax))
	}

	for _, r := range candidate {
		if !strings.ContainsRune(Alphabet, r) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidAlphabet, r))
			break
		}
	}

	return errors.Join(errs...)
}

// EncodeRoot returns the base-58 form of a digest.
func EncodeRoot(root []byte) string {
	return base58.Encode(root)
}

// DecodeRoot validates and decodes a base-58 digest.
func DecodeRoot(s string) ([]byte, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}
	root, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAlphabet, err)
	}
	if len(root) != HashSize {
		return nil, fmt.Errorf("%w: decoded %d bytes", ErrInvalidLength, len(root))
	}
	return root, nil
}

// EncodeHashes encodes an audit path for the wire.
func EncodeHashes(hashes [][]byte) []string {
	res := make([]string, len(hashes))
	for i, h := range hashes {
		res[i] = base58.Encode(h)
	}
	return res
}

// DecodeHashes is the inverse of EncodeHashes.
func DecodeHashes(hashes []string) ([][]byte, error) {
	res := make([][]byte, len(hashes))
	for i, s := range hashes {
		h, err := base58.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("hash %d: %w", i, err)
		}
		if len(h) != HashSize {
			return nil, fmt.Errorf("hash %d: %d bytes", i, len(h))
		}
		res[i] = h
	}
	return res, nil
}
