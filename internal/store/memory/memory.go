// Package memory provides an in-memory InstanceStore. Mutations are
// serialized per instance and every change replaces the backing transaction
// slice wholesale, so readers always hold an immutable snapshot.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riftline/arcjournal/internal/journal"
	apperrors "github.com/riftline/arcjournal/internal/platform/errors"
	"github.com/riftline/arcjournal/internal/platform/id"
	"github.com/riftline/arcjournal/internal/platform/metrics"
	"github.com/riftline/arcjournal/internal/store"
)

type instanceKey struct {
	ownerID string
	arcRef  string
}

type entry struct {
	// mu serializes AppendPending/Commit for this instance.
	mu        sync.Mutex
	ownerID   string
	arcRef    string
	createdAt time.Time
	// log holds the copy-on-write transaction slice. Readers load the
	// pointer and never see a mid-mutation collection.
	log atomic.Pointer[[]journal.Transaction]
	// lastSeq is the highest committed sequence number. Guarded by mu.
	lastSeq uint64
}

// Store is a concurrency-safe in-memory instance store.
type Store struct {
	mu        sync.RWMutex
	instances map[string]*entry
	byKey     map[instanceKey]string
	txOwner   map[string]string // transaction id -> instance id
}

var _ store.InstanceStore = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		instances: make(map[string]*entry),
		byKey:     make(map[instanceKey]string),
		txOwner:   make(map[string]string),
	}
}

// GetOrCreate implements store.InstanceStore.
func (s *Store) GetOrCreate(ctx context.Context, ownerID, arcRef string) (journal.Instance, error) {
	if err := ctx.Err(); err != nil {
		return journal.Instance{}, err
	}
	if ownerID == "" {
		return journal.Instance{}, apperrors.New(apperrors.CodeInstanceOwnerEmpty, "owner id is required")
	}
	if arcRef == "" {
		return journal.Instance{}, apperrors.New(apperrors.CodeInstanceArcEmpty, "arc ref is required")
	}

	key := instanceKey{ownerID: ownerID, arcRef: arcRef}

	s.mu.Lock()
	if instanceID, ok := s.byKey[key]; ok {
		ent := s.instances[instanceID]
		s.mu.Unlock()
		return snapshot(instanceID, ent), nil
	}

	instanceID, err := id.NewID()
	if err != nil {
		s.mu.Unlock()
		return journal.Instance{}, fmt.Errorf("generate instance id: %w", err)
	}
	ent := &entry{ownerID: ownerID, arcRef: arcRef, createdAt: time.Now().UTC()}
	empty := make([]journal.Transaction, 0)
	ent.log.Store(&empty)
	s.instances[instanceID] = ent
	s.byKey[key] = instanceID
	s.mu.Unlock()

	metrics.InstancesCreated.Inc()
	return snapshot(instanceID, ent), nil
}

// AppendPending implements store.InstanceStore.
func (s *Store) AppendPending(ctx context.Context, instanceID string, txs []journal.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ent, err := s.entry(instanceID)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		return nil
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	current := *ent.log.Load()
	next := make([]journal.Transaction, len(current), len(current)+len(txs))
	copy(next, current)

	s.mu.Lock()
	seen := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		if _, dup := seen[tx.ID]; dup {
			s.mu.Unlock()
			return apperrors.WithMetadata(apperrors.CodeDuplicateTransaction,
				fmt.Sprintf("transaction %s named twice in append batch", tx.ID),
				map[string]string{"transaction_id": tx.ID})
		}
		seen[tx.ID] = struct{}{}
		if owner, dup := s.txOwner[tx.ID]; dup {
			s.mu.Unlock()
			return apperrors.WithMetadata(apperrors.CodeDuplicateTransaction,
				fmt.Sprintf("transaction %s already appended", tx.ID),
				map[string]string{"transaction_id": tx.ID, "instance_id": owner})
		}
	}
	for _, tx := range txs {
		s.txOwner[tx.ID] = instanceID
	}
	s.mu.Unlock()

	for _, tx := range txs {
		tx.Status = journal.StatusPending
		tx.Seq = 0
		tx.ServerTime = nil
		next = append(next, tx)
	}
	ent.log.Store(&next)
	return nil
}

// Commit implements store.InstanceStore.
func (s *Store) Commit(ctx context.Context, instanceID string, txIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ent, err := s.entry(instanceID)
	if err != nil {
		return err
	}
	if len(txIDs) == 0 {
		return nil
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	current := *ent.log.Load()
	positions := make(map[string]int, len(current))
	for i, tx := range current {
		positions[tx.ID] = i
	}

	// Validate the full batch before touching anything, so a failed commit
	// has zero side effects.
	seen := make(map[string]struct{}, len(txIDs))
	for _, txID := range txIDs {
		if _, dup := seen[txID]; dup {
			return apperrors.WithMetadata(apperrors.CodeDuplicateTransaction,
				fmt.Sprintf("transaction %s named twice in commit batch", txID),
				map[string]string{"transaction_id": txID})
		}
		seen[txID] = struct{}{}

		pos, ok := positions[txID]
		if !ok {
			s.mu.RLock()
			owner, elsewhere := s.txOwner[txID]
			s.mu.RUnlock()
			if elsewhere && owner != instanceID {
				return apperrors.Wrap(apperrors.CodeCrossInstance,
					fmt.Sprintf("transaction %s belongs to instance %s", txID, owner), store.ErrCrossInstance)
			}
			return apperrors.Wrap(apperrors.CodeNotFound,
				fmt.Sprintf("transaction %s not found", txID), store.ErrNotFound)
		}
		if current[pos].Committed() {
			return apperrors.Wrap(apperrors.CodeAlreadyCommitted,
				fmt.Sprintf("transaction %s already committed", txID), store.ErrAlreadyCommitted)
		}
	}

	// A cancelled commit must leave the instance exactly as before.
	if err := ctx.Err(); err != nil {
		return err
	}

	next := make([]journal.Transaction, len(current))
	copy(next, current)

	serverTime := time.Now().UTC()
	seq := ent.lastSeq
	for _, txID := range txIDs {
		seq++
		tx := next[positions[txID]]
		tx.Status = journal.StatusCommitted
		tx.Seq = seq
		ts := serverTime
		tx.ServerTime = &ts
		next[positions[txID]] = tx
	}

	ent.lastSeq = seq
	ent.log.Store(&next)
	return nil
}

// Load implements store.InstanceStore.
func (s *Store) Load(ctx context.Context, instanceID string) (journal.Instance, error) {
	if err := ctx.Err(); err != nil {
		return journal.Instance{}, err
	}
	ent, err := s.entry(instanceID)
	if err != nil {
		return journal.Instance{}, err
	}
	return snapshot(instanceID, ent), nil
}

// ListCommitted implements store.InstanceStore.
func (s *Store) ListCommitted(ctx context.Context, instanceID string) ([]journal.Transaction, error) {
	in, err := s.Load(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return in.Committed(), nil
}

// Close implements store.InstanceStore.
func (s *Store) Close() error { return nil }

func (s *Store) entry(instanceID string) (*entry, error) {
	s.mu.RLock()
	ent, ok := s.instances[instanceID]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.Wrap(apperrors.CodeNotFound,
			fmt.Sprintf("instance %s not found", instanceID), store.ErrNotFound)
	}
	return ent, nil
}

func snapshot(instanceID string, ent *entry) journal.Instance {
	log := *ent.log.Load()
	txs := make([]journal.Transaction, len(log))
	copy(txs, log)
	return journal.Instance{
		ID:           instanceID,
		OwnerID:      ent.ownerID,
		ArcRef:       ent.arcRef,
		Transactions: txs,
		CreatedAt:    ent.createdAt,
	}
}
