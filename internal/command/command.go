// Package command implements the consumer boundary: handlers validate intent
// against derived state, build candidate transactions, and commit them
// atomically. Sequence numbers are never assigned here; only the store's
// Commit does that.
package command

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riftline/arcjournal/internal/content"
	"github.com/riftline/arcjournal/internal/journal"
	apperrors "github.com/riftline/arcjournal/internal/platform/errors"
	"github.com/riftline/arcjournal/internal/platform/metrics"
	"github.com/riftline/arcjournal/internal/replay"
	"github.com/riftline/arcjournal/internal/store"
)

// Publisher receives transactions after they commit. The feed hub implements
// it; a nil publisher disables publishing.
type Publisher interface {
	Publish(instanceID string, txs []journal.Transaction)
}

// Result is the structured outcome of one command. Validation failures set
// Successful=false with a human-readable message and commit nothing;
// structural failures are returned as errors instead.
type Result struct {
	Successful     bool
	ErrorMessage   string
	InstanceID     string
	TransactionIDs []string
}

// Handler validates and commits game commands for one content library.
type Handler struct {
	store     store.InstanceStore
	library   *content.Library
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	// mu guards instLocks. Each instance lock is held across replay,
	// validation, and commit so a command always validates against the
	// state its commit will extend.
	mu        sync.Mutex
	instLocks map[string]*sync.Mutex
}

// Option configures a Handler.
type Option func(*Handler)

// WithPublisher attaches a committed-transaction publisher.
func WithPublisher(p Publisher) Option {
	return func(h *Handler) { h.publisher = p }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithClock overrides the local-timestamp clock. Tests use it for
// reproducible transactions.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithIDFactory overrides transaction id generation. Tests use it for
// predictable ids.
func WithIDFactory(newID func() string) Option {
	return func(h *Handler) { h.newID = newID }
}

// NewHandler builds a command handler over a store and content library.
func NewHandler(st store.InstanceStore, library *content.Library, opts ...Option) *Handler {
	h := &Handler{
		store:     st,
		library:   library,
		logger:    slog.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
		instLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// buildFunc inspects derived state and returns the payloads to commit. A
// validation error commits nothing and surfaces in the Result.
type buildFunc func(state *replay.State, arc *content.Arc) ([]journal.Payload, error)

// instanceLock returns the mutex serializing commands for one (owner, arc)
// journal.
func (h *Handler) instanceLock(ownerID, arcRef string) *sync.Mutex {
	key := ownerID + "\x00" + arcRef
	h.mu.Lock()
	defer h.mu.Unlock()
	lock, ok := h.instLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		h.instLocks[key] = lock
	}
	return lock
}

func (h *Handler) execute(ctx context.Context, ownerID, arcRef, name string, build buildFunc) (Result, error) {
	arc, err := h.library.Arc(arcRef)
	if err != nil {
		return Result{}, err
	}

	lock := h.instanceLock(ownerID, arcRef)
	lock.Lock()
	defer lock.Unlock()

	instance, err := h.store.GetOrCreate(ctx, ownerID, arcRef)
	if err != nil {
		return Result{}, err
	}
	state, err := replay.ReplayToNow(instance, h.library)
	if err != nil {
		return Result{}, err
	}

	payloads, err := build(state, arc)
	if err != nil {
		if apperrors.IsValidation(err) {
			metrics.CommitsTotal.WithLabelValues("rejected").Inc()
			h.logger.InfoContext(ctx, "command rejected",
				"command", name, "instance_id", instance.ID, "reason", err.Error())
			return Result{Successful: false, ErrorMessage: err.Error(), InstanceID: instance.ID}, nil
		}
		return Result{}, err
	}
	if len(payloads) == 0 {
		return Result{Successful: true, InstanceID: instance.ID}, nil
	}

	localTime := h.now()
	txs := make([]journal.Transaction, 0, len(payloads))
	ids := make([]string, 0, len(payloads))
	for _, payload := range payloads {
		tx, err := journal.NewTransaction(h.newID(), ownerID, localTime, payload)
		if err != nil {
			return Result{}, err
		}
		txs = append(txs, tx)
		ids = append(ids, tx.ID)
	}

	if err := h.store.AppendPending(ctx, instance.ID, txs); err != nil {
		metrics.CommitsTotal.WithLabelValues("error").Inc()
		return Result{}, err
	}
	if err := h.store.Commit(ctx, instance.ID, ids); err != nil {
		metrics.CommitsTotal.WithLabelValues("error").Inc()
		return Result{}, err
	}

	metrics.CommitsTotal.WithLabelValues("committed").Inc()
	for _, tx := range txs {
		metrics.TransactionsCommitted.WithLabelValues(string(tx.Kind)).Inc()
	}
	h.logger.InfoContext(ctx, "command committed",
		"command", name, "instance_id", instance.ID, "transactions", len(ids))

	h.publishCommitted(ctx, instance.ID, ids)
	return Result{Successful: true, InstanceID: instance.ID, TransactionIDs: ids}, nil
}

// publishCommitted reloads the committed records so subscribers see assigned
// sequence numbers and server timestamps. Publish failures never fail the
// command; the commit already happened.
func (h *Handler) publishCommitted(ctx context.Context, instanceID string, ids []string) {
	if h.publisher == nil {
		return
	}
	committed, err := h.store.ListCommitted(ctx, instanceID)
	if err != nil {
		h.logger.WarnContext(ctx, "load committed for publish", "instance_id", instanceID, "error", err)
		return
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	batch := make([]journal.Transaction, 0, len(ids))
	for _, tx := range committed {
		if _, ok := wanted[tx.ID]; ok {
			batch = append(batch, tx)
		}
	}
	h.publisher.Publish(instanceID, batch)
}

// State replays the instance for a (owner, arc) pair. Query handlers use it
// to answer current-state reads.
func (h *Handler) State(ctx context.Context, ownerID, arcRef string) (*replay.State, error) {
	instance, err := h.store.GetOrCreate(ctx, ownerID, arcRef)
	if err != nil {
		return nil, err
	}
	return replay.ReplayToNow(instance, h.library)
}
