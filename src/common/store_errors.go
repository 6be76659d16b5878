package common

import (
	"errors"
	"fmt"
)

// StoreErrType enumerates the kinds of errors a ledger Store can return.
type StoreErrType uint32

const (
	// KeyNotFound is returned when a txn or hash does not exist at a seqNo.
	KeyNotFound StoreErrType = iota
	// PassedIndex is returned when appending at a seqNo that was already
	// written.
	PassedIndex
	// SkippedIndex is returned when appending would leave a gap.
	SkippedIndex
	// Empty is returned when reading the last entry of an empty ledger.
	Empty
	// Closed is returned when the underlying database was closed.
	Closed
	// Corrupted is returned when stored data cannot be decoded.
	Corrupted
)

// StoreErr is the error type of the ledger storage layer.
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
}

// NewStoreErr ...
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Error ...
func (e StoreErr) Error() string {
	m := ""
	switch e.errType {
	case KeyNotFound:
		m = "Not Found"
	case PassedIndex:
		m = "Passed Index"
	case SkippedIndex:
		m = "Skipped Index"
	case Empty:
		m = "Empty"
	case Closed:
		m = "Closed"
	case Corrupted:
		m = "Corrupted"
	}

	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, m)
}

// Type returns the kind of the error.
func (e StoreErr) Type() StoreErrType {
	return e.errType
}

// IsStore checks that an error is, or wraps, a StoreErr and that its code
// matches the provided StoreErr code.
func IsStore(err error, t StoreErrType) bool {
	var storeErr StoreErr
	return errors.As(err, &storeErr) && storeErr.errType == t
}
