package ledger

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

// AuditEntry is one transaction of the audit ledger. It is written every time
// a batch is ordered and records the state of every ledger after the batch.
type AuditEntry struct {
	ViewNo      uint64
	PPSeqNo     uint64
	LedgerID    ID
	LedgerSizes map[ID]uint64
	LedgerRoots map[ID]string
}

// ThreePC returns the marker at which the entry was ordered.
func (a *AuditEntry) ThreePC() ThreePC {
	return Ordered(a.ViewNo, a.PPSeqNo)
}

func auditHandle() *codec.MsgpackHandle {
	mh := new(codec.MsgpackHandle)
	// every node must produce the same bytes, and so the same leaf hash,
	// for the same entry
	mh.Canonical = true
	return mh
}

// Marshal encodes the entry with msgpack.
func (a *AuditEntry) Marshal() ([]byte, error) {
	var b bytes.Buffer

	enc := codec.NewEncoder(&b, auditHandle())

	if err := enc.Encode(a); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes an entry produced by Marshal.
func (a *AuditEntry) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)

	dec := codec.NewDecoder(b, auditHandle())

	return dec.Decode(a)
}

// DecodeAuditEntry is a convenience wrapper around Unmarshal.
func DecodeAuditEntry(data []byte) (*AuditEntry, error) {
	entry := new(AuditEntry)
	if err := entry.Unmarshal(data); err != nil {
		return nil, err
	}
	return entry, nil
}
