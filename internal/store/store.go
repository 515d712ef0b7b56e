// Package store defines the instance/transaction persistence boundary: the
// contract command handlers append and commit through, and replay reads from.
package store

import (
	"context"

	"github.com/riftline/arcjournal/internal/journal"
	apperrors "github.com/riftline/arcjournal/internal/platform/errors"
)

// ErrNotFound indicates an unknown instance id, or a commit naming a
// transaction id the instance has never seen.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrAlreadyCommitted indicates a commit named a transaction that is no
// longer pending.
var ErrAlreadyCommitted = apperrors.New(apperrors.CodeAlreadyCommitted, "transaction already committed")

// ErrCrossInstance indicates a commit named a transaction that belongs to a
// different instance than the one addressed.
var ErrCrossInstance = apperrors.New(apperrors.CodeCrossInstance, "transaction belongs to another instance")

// InstanceStore owns the per-(owner, arc) append-only transaction logs.
//
// Mutations on one instance are fully serialized with respect to each other;
// reads return stable snapshots and never observe a partially applied commit.
type InstanceStore interface {
	// GetOrCreate finds the live instance for (ownerID, arcRef), creating it
	// atomically when none exists. Racing callers for the same key observe
	// the same instance id.
	GetOrCreate(ctx context.Context, ownerID, arcRef string) (journal.Instance, error)
	// AppendPending adds new transactions in pending state, in the given
	// order. Fails with ErrNotFound when the instance is unknown.
	AppendPending(ctx context.Context, instanceID string, txs []journal.Transaction) error
	// Commit assigns strictly increasing sequence numbers (in the order the
	// ids are given) and a server timestamp to exactly the named pending
	// transactions, then flips them to committed. The batch is atomic:
	// on any failure no named transaction changes state, and readers never
	// observe a partially committed batch.
	Commit(ctx context.Context, instanceID string, txIDs []string) error
	// Load returns a stable snapshot of the instance and its full log.
	Load(ctx context.Context, instanceID string) (journal.Instance, error)
	// ListCommitted returns the committed transactions in ascending Seq
	// order, as a stable snapshot.
	ListCommitted(ctx context.Context, instanceID string) ([]journal.Transaction, error)
	// Close releases underlying resources.
	Close() error
}
