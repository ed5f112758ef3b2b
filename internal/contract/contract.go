// Package contract resolves the opaque ContractID tag spec.md defines into
// the per-tenant MongoDB collection name the Persistence Adapter reads and
// writes.
package contract

import (
	"encoding/hex"

	"github.com/kvpair-io/kvpair-server/internal/apierr"
)

// MaxLen is the largest ContractID spec.md allows.
const MaxLen = 32

// ID is an opaque tenant tag, at most MaxLen bytes.
type ID []byte

// defaultID is the fixed tenant used when a request carries no ContractID at
// all. A single zero byte rather than the empty slice keeps the derived
// collection name (MERKLEDATA_00) legible instead of the empty-hex
// MERKLEDATA_.
var defaultID = ID{0x00}

// Default returns the fixed default tenant's ID.
func Default() ID { return defaultID }

// Parse validates a raw ContractID tag, treating a nil/empty slice as a
// request for the default tenant.
func Parse(raw []byte) (ID, error) {
	if len(raw) == 0 {
		return Default(), nil
	}
	if len(raw) > MaxLen {
		return nil, apierr.New(apierr.InvalidContractID, "contract_id exceeds maximum length")
	}
	return ID(raw), nil
}

// Collection derives the per-tenant collection name.
func (id ID) Collection() string {
	if len(id) == 0 {
		id = defaultID
	}
	return "MERKLEDATA_" + hex.EncodeToString(id)
}

// Hex renders the ID the same way the collection name does, for logging.
func (id ID) Hex() string {
	if len(id) == 0 {
		id = defaultID
	}
	return hex.EncodeToString(id)
}
