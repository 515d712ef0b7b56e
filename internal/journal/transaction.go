// Package journal defines the transaction log model: immutable-once-committed
// transactions grouped into per-(owner, arc) instances.
package journal

import (
	"strings"
	"time"

	apperrors "github.com/riftline/arcjournal/internal/platform/errors"
)

// Status is the lifecycle state of a transaction. The only legal transition is
// Pending to Committed; committed transactions never change again.
type Status string

const (
	// StatusPending marks a transaction that has been appended but not committed.
	StatusPending Status = "pending"
	// StatusCommitted marks a transaction with an assigned sequence number.
	StatusCommitted Status = "committed"
)

// Transaction is one record of the append-only journal.
type Transaction struct {
	// ID is the caller-supplied globally unique identifier.
	ID string
	// Kind identifies the event this transaction records.
	Kind Kind
	// OwnerID is the player this transaction belongs to.
	OwnerID string
	// Status is pending until Commit assigns a sequence number.
	Status Status
	// Seq is the per-instance total-order key. Zero while pending.
	// Assigned by the store on commit.
	Seq uint64
	// LocalTime is the client-asserted creation time. Untrusted.
	LocalTime time.Time
	// ServerTime is assigned by the store at commit time. Nil while pending.
	ServerTime *time.Time
	// Payload holds the kind-specific body.
	Payload Payload
}

// NewTransaction constructs a pending transaction.
func NewTransaction(id string, ownerID string, localTime time.Time, payload Payload) (Transaction, error) {
	if strings.TrimSpace(id) == "" {
		return Transaction{}, apperrors.New(apperrors.CodeTransactionIDEmpty, "transaction id is required")
	}
	if strings.TrimSpace(ownerID) == "" {
		return Transaction{}, apperrors.New(apperrors.CodeTransactionOwnerEmpty, "transaction owner is required")
	}
	if payload == nil || !payload.PayloadKind().IsValid() {
		return Transaction{}, apperrors.New(apperrors.CodeTransactionKindEmpty, "transaction payload is required")
	}
	return Transaction{
		ID:        id,
		Kind:      payload.PayloadKind(),
		OwnerID:   ownerID,
		Status:    StatusPending,
		LocalTime: localTime.UTC(),
		Payload:   payload,
	}, nil
}

// Committed reports whether the transaction has been committed.
func (t Transaction) Committed() bool {
	return t.Status == StatusCommitted
}
