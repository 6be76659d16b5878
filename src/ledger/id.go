package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// ID identifies one of the ledgers of a node.
type ID uint8

const (
	PoolLedgerID ID = iota
	DomainLedgerID
	ConfigLedgerID
	AuditLedgerID
)

// AllIDs lists the ledgers of a node in catch-up order.
var AllIDs = []ID{AuditLedgerID, PoolLedgerID, ConfigLedgerID, DomainLedgerID}

func (id ID) String() string {
	switch id {
	case PoolLedgerID:
		return "Pool"
	case DomainLedgerID:
		return "Domain"
	case ConfigLedgerID:
		return "Config"
	case AuditLedgerID:
		return "Audit"
	default:
		return fmt.Sprintf("Ledger(%d)", uint8(id))
	}
}

// Valid reports whether id names a known ledger.
func (id ID) Valid() bool {
	return id <= AuditLedgerID
}

// ParseID accepts either the numeric id or the name of a ledger, in any
// case.
func ParseID(s string) (ID, error) {
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		id := ID(n)
		if !id.Valid() {
			return 0, fmt.Errorf("unknown ledger %d", n)
		}
		return id, nil
	}
	for _, id := range AllIDs {
		if strings.EqualFold(s, id.String()) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown ledger %q", s)
}
