package ledger

import (
	"strings"

	"github.com/google/uuid"

	"github.com/custopay/transfer-relay/internal/model"
)

// referencePrefixes maps a transaction type to its human-readable prefix.
var referencePrefixes = map[model.TransactionType]string{
	model.TransactionTypeTransfer: "TRF",
}

// NewReference generates a type-prefixed, human-readable, unique reference,
// e.g. "TRF-9F1C2B7A4D3E".
func NewReference(txType model.TransactionType) string {
	prefix, ok := referencePrefixes[txType]
	if !ok {
		prefix = "TXN"
	}
	token := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:12]
	return prefix + "-" + token
}
