package ledger

import (
	"errors"
	"fmt"
)

// ErrMalformedThreePC is returned when only one of viewNo and ppSeqNo is set.
var ErrMalformedThreePC = errors.New("viewNo and ppSeqNo must be both set or both null")

// ThreePC is a three-phase-commit marker. It is either Unordered (nothing
// ordered yet, null on the wire) or Ordered at a (viewNo, ppSeqNo) position.
// ThreePC values are comparable and can be used as map keys.
type ThreePC struct {
	ordered bool
	viewNo  uint64
	ppSeqNo uint64
}

// Unordered returns the marker of a ledger for which nothing was ordered.
func Unordered() ThreePC {
	return ThreePC{}
}

// Ordered returns the marker (viewNo, ppSeqNo).
func Ordered(viewNo, ppSeqNo uint64) ThreePC {
	return ThreePC{
		ordered: true,
		viewNo:  viewNo,
		ppSeqNo: ppSeqNo,
	}
}

// FromNullable builds a marker from its wire representation.
func FromNullable(viewNo, ppSeqNo *uint64) (ThreePC, error) {
	switch {
	case viewNo == nil && ppSeqNo == nil:
		return Unordered(), nil
	case viewNo != nil && ppSeqNo != nil:
		return Ordered(*viewNo, *ppSeqNo), nil
	default:
		return ThreePC{}, ErrMalformedThreePC
	}
}

// Nullable is the inverse of FromNullable.
func (t ThreePC) Nullable() (viewNo, ppSeqNo *uint64) {
	if !t.ordered {
		return nil, nil
	}
	v, p := t.viewNo, t.ppSeqNo
	return &v, &p
}

// Get returns the marker and whether it is Ordered.
func (t ThreePC) Get() (viewNo, ppSeqNo uint64, ok bool) {
	return t.viewNo, t.ppSeqNo, t.ordered
}

// IsOrdered reports whether t is not Unordered.
func (t ThreePC) IsOrdered() bool {
	return t.ordered
}

// Values returns (viewNo, ppSeqNo), or (0, 0) for Unordered.
func (t ThreePC) Values() (uint64, uint64) {
	return t.viewNo, t.ppSeqNo
}

// Less orders markers; Unordered comes first.
func (t ThreePC) Less(o ThreePC) bool {
	if t.ordered != o.ordered {
		return !t.ordered
	}
	if t.viewNo != o.viewNo {
		return t.viewNo < o.viewNo
	}
	return t.ppSeqNo < o.ppSeqNo
}

func (t ThreePC) String() string {
	if !t.ordered {
		return "(null, null)"
	}
	return fmt.Sprintf("(%d, %d)", t.viewNo, t.ppSeqNo)
}
