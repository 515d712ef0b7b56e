// Package sqlite provides a SQLite-backed InstanceStore using embedded
// migrations. One SQL transaction per operation keeps commit batches atomic;
// the single-writer WAL model serializes mutations.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/riftline/arcjournal/internal/journal"
	apperrors "github.com/riftline/arcjournal/internal/platform/errors"
	"github.com/riftline/arcjournal/internal/platform/id"
	"github.com/riftline/arcjournal/internal/platform/metrics"
	"github.com/riftline/arcjournal/internal/platform/storage/sqlitemigrate"
	"github.com/riftline/arcjournal/internal/store"
	"github.com/riftline/arcjournal/internal/store/sqlite/migrations"
)

var tracer = otel.Tracer("arcjournal/store/sqlite")

// Store provides a SQLite-backed instance store.
type Store struct {
	sqlDB *sql.DB
}

var _ store.InstanceStore = (*Store)(nil)

// Open opens a SQLite journal store at the provided path and applies
// embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.JournalFS, "journal"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database.
//
// Close is intentionally nil-safe so callers can defer it in all startup paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// GetOrCreate implements store.InstanceStore.
func (s *Store) GetOrCreate(ctx context.Context, ownerID, arcRef string) (journal.Instance, error) {
	if err := ctx.Err(); err != nil {
		return journal.Instance{}, err
	}
	if s == nil || s.sqlDB == nil {
		return journal.Instance{}, fmt.Errorf("storage is not configured")
	}
	if ownerID == "" {
		return journal.Instance{}, apperrors.New(apperrors.CodeInstanceOwnerEmpty, "owner id is required")
	}
	if arcRef == "" {
		return journal.Instance{}, apperrors.New(apperrors.CodeInstanceArcEmpty, "arc ref is required")
	}

	if existing, err := s.findByKey(ctx, ownerID, arcRef); err == nil {
		return s.Load(ctx, existing)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return journal.Instance{}, err
	}

	instanceID, err := id.NewID()
	if err != nil {
		return journal.Instance{}, fmt.Errorf("generate instance id: %w", err)
	}
	createdAt := time.Now().UTC()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return journal.Instance{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO instances (id, owner_id, arc_ref, created_at) VALUES (?, ?, ?, ?)`,
		instanceID, ownerID, arcRef, toMillis(createdAt),
	); err != nil {
		if isConstraintError(err) {
			// A racing caller created the instance first; return theirs.
			existing, lookupErr := s.findByKey(ctx, ownerID, arcRef)
			if lookupErr == nil {
				return s.Load(ctx, existing)
			}
		}
		return journal.Instance{}, fmt.Errorf("insert instance: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO instance_seqs (instance_id, next_seq) VALUES (?, 1)`,
		instanceID,
	); err != nil {
		return journal.Instance{}, fmt.Errorf("init instance seq: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return journal.Instance{}, fmt.Errorf("commit: %w", err)
	}

	metrics.InstancesCreated.Inc()
	return journal.Instance{ID: instanceID, OwnerID: ownerID, ArcRef: arcRef, CreatedAt: createdAt}, nil
}

// AppendPending implements store.InstanceStore.
func (s *Store) AppendPending(ctx context.Context, instanceID string, txs []journal.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(txs) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := instanceExists(ctx, tx, instanceID); err != nil {
		return err
	}

	var position int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM transactions WHERE instance_id = ?`,
		instanceID,
	).Scan(&position); err != nil {
		return fmt.Errorf("read log position: %w", err)
	}

	for _, pending := range txs {
		position++
		payloadJSON, err := json.Marshal(pending.Payload.Fields())
		if err != nil {
			return fmt.Errorf("encode payload for %s: %w", pending.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transactions
			 (instance_id, tx_id, kind, owner_id, status, seq, local_ts, server_ts, payload_json, position)
			 VALUES (?, ?, ?, ?, ?, 0, ?, NULL, ?, ?)`,
			instanceID, pending.ID, string(pending.Kind), pending.OwnerID,
			string(journal.StatusPending), toMillis(pending.LocalTime), string(payloadJSON), position,
		); err != nil {
			if isConstraintError(err) {
				return apperrors.WithMetadata(apperrors.CodeDuplicateTransaction,
					fmt.Sprintf("transaction %s already appended", pending.ID),
					map[string]string{"transaction_id": pending.ID})
			}
			return fmt.Errorf("insert transaction %s: %w", pending.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Commit implements store.InstanceStore.
func (s *Store) Commit(ctx context.Context, instanceID string, txIDs []string) error {
	ctx, span := tracer.Start(ctx, "sqlite.Commit")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(txIDs) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := instanceExists(ctx, tx, instanceID); err != nil {
		return err
	}

	// Validate the whole batch before assigning anything; the enclosing SQL
	// transaction guarantees a failed batch leaves no side effects.
	seen := make(map[string]struct{}, len(txIDs))
	for _, txID := range txIDs {
		if _, dup := seen[txID]; dup {
			return apperrors.WithMetadata(apperrors.CodeDuplicateTransaction,
				fmt.Sprintf("transaction %s named twice in commit batch", txID),
				map[string]string{"transaction_id": txID})
		}
		seen[txID] = struct{}{}

		var owner, status string
		err := tx.QueryRowContext(ctx,
			`SELECT instance_id, status FROM transactions WHERE tx_id = ?`, txID,
		).Scan(&owner, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Wrap(apperrors.CodeNotFound,
				fmt.Sprintf("transaction %s not found", txID), store.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load transaction %s: %w", txID, err)
		}
		if owner != instanceID {
			return apperrors.Wrap(apperrors.CodeCrossInstance,
				fmt.Sprintf("transaction %s belongs to instance %s", txID, owner), store.ErrCrossInstance)
		}
		if status == string(journal.StatusCommitted) {
			return apperrors.Wrap(apperrors.CodeAlreadyCommitted,
				fmt.Sprintf("transaction %s already committed", txID), store.ErrAlreadyCommitted)
		}
	}

	var nextSeq uint64
	if err := tx.QueryRowContext(ctx,
		`SELECT next_seq FROM instance_seqs WHERE instance_id = ?`, instanceID,
	).Scan(&nextSeq); err != nil {
		return fmt.Errorf("read instance seq: %w", err)
	}

	serverTime := toMillis(time.Now().UTC())
	for _, txID := range txIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE transactions SET status = ?, seq = ?, server_ts = ?
			 WHERE instance_id = ? AND tx_id = ?`,
			string(journal.StatusCommitted), nextSeq, serverTime, instanceID, txID,
		); err != nil {
			return fmt.Errorf("commit transaction %s: %w", txID, err)
		}
		nextSeq++
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE instance_seqs SET next_seq = ? WHERE instance_id = ?`,
		nextSeq, instanceID,
	); err != nil {
		return fmt.Errorf("advance instance seq: %w", err)
	}

	// A cancelled commit must leave the instance untouched.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load implements store.InstanceStore.
func (s *Store) Load(ctx context.Context, instanceID string) (journal.Instance, error) {
	ctx, span := tracer.Start(ctx, "sqlite.Load")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return journal.Instance{}, err
	}
	if s == nil || s.sqlDB == nil {
		return journal.Instance{}, fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return journal.Instance{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var in journal.Instance
	var createdAt int64
	err = tx.QueryRowContext(ctx,
		`SELECT id, owner_id, arc_ref, created_at FROM instances WHERE id = ?`, instanceID,
	).Scan(&in.ID, &in.OwnerID, &in.ArcRef, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return journal.Instance{}, apperrors.Wrap(apperrors.CodeNotFound,
			fmt.Sprintf("instance %s not found", instanceID), store.ErrNotFound)
	}
	if err != nil {
		return journal.Instance{}, fmt.Errorf("load instance: %w", err)
	}
	in.CreatedAt = fromMillis(createdAt)

	rows, err := tx.QueryContext(ctx,
		`SELECT tx_id, kind, owner_id, status, seq, local_ts, server_ts, payload_json
		 FROM transactions WHERE instance_id = ? ORDER BY position ASC`, instanceID,
	)
	if err != nil {
		return journal.Instance{}, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanTransaction(rows)
		if err != nil {
			return journal.Instance{}, err
		}
		in.Transactions = append(in.Transactions, record)
	}
	if err := rows.Err(); err != nil {
		return journal.Instance{}, fmt.Errorf("iterate transactions: %w", err)
	}
	return in, nil
}

// ListCommitted implements store.InstanceStore.
func (s *Store) ListCommitted(ctx context.Context, instanceID string) ([]journal.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := instanceExists(ctx, tx, instanceID); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT tx_id, kind, owner_id, status, seq, local_ts, server_ts, payload_json
		 FROM transactions WHERE instance_id = ? AND status = ? ORDER BY seq ASC`,
		instanceID, string(journal.StatusCommitted),
	)
	if err != nil {
		return nil, fmt.Errorf("list committed: %w", err)
	}
	defer rows.Close()

	committed := make([]journal.Transaction, 0)
	for rows.Next() {
		record, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		committed = append(committed, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate committed: %w", err)
	}
	return committed, nil
}

func (s *Store) findByKey(ctx context.Context, ownerID, arcRef string) (string, error) {
	var instanceID string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id FROM instances WHERE owner_id = ? AND arc_ref = ?`, ownerID, arcRef,
	).Scan(&instanceID)
	return instanceID, err
}

func instanceExists(ctx context.Context, tx *sql.Tx, instanceID string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM instances WHERE id = ?`, instanceID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.Wrap(apperrors.CodeNotFound,
			fmt.Sprintf("instance %s not found", instanceID), store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check instance: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (journal.Transaction, error) {
	var record journal.Transaction
	var kind, status, payloadJSON string
	var seq int64
	var localTS int64
	var serverTS sql.NullInt64

	if err := row.Scan(&record.ID, &kind, &record.OwnerID, &status, &seq, &localTS, &serverTS, &payloadJSON); err != nil {
		return journal.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}

	record.Kind = journal.Kind(kind)
	record.Status = journal.Status(status)
	record.Seq = uint64(seq)
	record.LocalTime = fromMillis(localTS)
	record.ServerTime = fromNullMillis(serverTS)

	var fields journal.Fields
	if err := json.Unmarshal([]byte(payloadJSON), &fields); err != nil {
		return journal.Transaction{}, fmt.Errorf("decode payload for %s: %w", record.ID, err)
	}
	payload, err := journal.DecodePayload(record.Kind, fields)
	if err != nil {
		return journal.Transaction{}, err
	}
	record.Payload = payload
	return record, nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis reverses toMillis for persisted millisecond timestamps.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// fromNullMillis maps nullable SQL timestamps back into optional domain time values.
func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
