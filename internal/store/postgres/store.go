// Package postgres provides a Postgres-backed InstanceStore with the same
// semantics as the SQLite store. Schema setup runs on Open so deployments
// only need a reachable database.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/riftline/arcjournal/internal/journal"
	apperrors "github.com/riftline/arcjournal/internal/platform/errors"
	"github.com/riftline/arcjournal/internal/platform/id"
	"github.com/riftline/arcjournal/internal/platform/metrics"
	"github.com/riftline/arcjournal/internal/store"
)

const uniqueViolation = "23505"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS instances (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		arc_ref TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		UNIQUE (owner_id, arc_ref)
	)`,
	`CREATE TABLE IF NOT EXISTS instance_seqs (
		instance_id TEXT PRIMARY KEY REFERENCES instances(id),
		next_seq BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		instance_id TEXT NOT NULL REFERENCES instances(id),
		tx_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		status TEXT NOT NULL,
		seq BIGINT NOT NULL,
		local_ts BIGINT NOT NULL,
		server_ts BIGINT,
		payload_json TEXT NOT NULL,
		position BIGINT NOT NULL,
		PRIMARY KEY (instance_id, tx_id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_tx_id ON transactions (tx_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_instance_seq
		ON transactions (instance_id, seq) WHERE status = 'committed'`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_instance_position
		ON transactions (instance_id, position)`,
}

// Store provides a Postgres-backed instance store.
type Store struct {
	sqlDB *sql.DB
}

var _ store.InstanceStore = (*Store)(nil)

// Open connects to Postgres using the provided DSN and ensures the journal
// schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range schema {
		if _, err := sqlDB.ExecContext(ctx, stmt); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying connection pool.
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
		`INSERT INTO instances (id, owner_id, arc_ref, created_at) VALUES ($1, $2, $3, $4)`,
		instanceID, ownerID, arcRef, createdAt.UnixMilli(),
	); err != nil {
		if isUniqueViolation(err) {
			existing, lookupErr := s.findByKey(ctx, ownerID, arcRef)
			if lookupErr == nil {
				return s.Load(ctx, existing)
			}
		}
		return journal.Instance{}, fmt.Errorf("insert instance: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO instance_seqs (instance_id, next_seq) VALUES ($1, 1)`, instanceID,
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

	if err := lockInstance(ctx, tx, instanceID); err != nil {
		return err
	}

	var position int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM transactions WHERE instance_id = $1`,
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
			 VALUES ($1, $2, $3, $4, $5, 0, $6, NULL, $7, $8)`,
			instanceID, pending.ID, string(pending.Kind), pending.OwnerID,
			string(journal.StatusPending), pending.LocalTime.UTC().UnixMilli(),
			string(payloadJSON), position,
		); err != nil {
			if isUniqueViolation(err) {
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

	// The row lock on instance_seqs serializes sequence assignment for the
	// instance across concurrent committers.
	var nextSeq uint64
	err = tx.QueryRowContext(ctx,
		`SELECT next_seq FROM instance_seqs WHERE instance_id = $1 FOR UPDATE`, instanceID,
	).Scan(&nextSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.Wrap(apperrors.CodeNotFound,
			fmt.Sprintf("instance %s not found", instanceID), store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock instance seq: %w", err)
	}

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
			`SELECT instance_id, status FROM transactions WHERE tx_id = $1`, txID,
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

	serverTime := time.Now().UTC().UnixMilli()
	for _, txID := range txIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE transactions SET status = $1, seq = $2, server_ts = $3
			 WHERE instance_id = $4 AND tx_id = $5`,
			string(journal.StatusCommitted), nextSeq, serverTime, instanceID, txID,
		); err != nil {
			return fmt.Errorf("commit transaction %s: %w", txID, err)
		}
		nextSeq++
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE instance_seqs SET next_seq = $1 WHERE instance_id = $2`,
		nextSeq, instanceID,
	); err != nil {
		return fmt.Errorf("advance instance seq: %w", err)
	}

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
	if err := ctx.Err(); err != nil {
		return journal.Instance{}, err
	}
	if s == nil || s.sqlDB == nil {
		return journal.Instance{}, fmt.Errorf("storage is not configured")
	}

	var in journal.Instance
	var createdAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, owner_id, arc_ref, created_at FROM instances WHERE id = $1`, instanceID,
	).Scan(&in.ID, &in.OwnerID, &in.ArcRef, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return journal.Instance{}, apperrors.Wrap(apperrors.CodeNotFound,
			fmt.Sprintf("instance %s not found", instanceID), store.ErrNotFound)
	}
	if err != nil {
		return journal.Instance{}, fmt.Errorf("load instance: %w", err)
	}
	in.CreatedAt = time.UnixMilli(createdAt).UTC()

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT tx_id, kind, owner_id, status, seq, local_ts, server_ts, payload_json
		 FROM transactions WHERE instance_id = $1 ORDER BY position ASC`, instanceID,
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

	var one int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT 1 FROM instances WHERE id = $1`, instanceID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Wrap(apperrors.CodeNotFound,
			fmt.Sprintf("instance %s not found", instanceID), store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("check instance: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT tx_id, kind, owner_id, status, seq, local_ts, server_ts, payload_json
		 FROM transactions WHERE instance_id = $1 AND status = $2 ORDER BY seq ASC`,
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
		`SELECT id FROM instances WHERE owner_id = $1 AND arc_ref = $2`, ownerID, arcRef,
	).Scan(&instanceID)
	return instanceID, err
}

func lockInstance(ctx context.Context, tx *sql.Tx, instanceID string) error {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM instances WHERE id = $1 FOR UPDATE`, instanceID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.Wrap(apperrors.CodeNotFound,
			fmt.Sprintf("instance %s not found", instanceID), store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock instance: %w", err)
	}
	return nil
}

func scanTransaction(rows *sql.Rows) (journal.Transaction, error) {
	var record journal.Transaction
	var kind, status, payloadJSON string
	var seq, localTS int64
	var serverTS sql.NullInt64

	if err := rows.Scan(&record.ID, &kind, &record.OwnerID, &status, &seq, &localTS, &serverTS, &payloadJSON); err != nil {
		return journal.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}

	record.Kind = journal.Kind(kind)
	record.Status = journal.Status(status)
	record.Seq = uint64(seq)
	record.LocalTime = time.UnixMilli(localTS).UTC()
	if serverTS.Valid {
		t := time.UnixMilli(serverTS.Int64).UTC()
		record.ServerTime = &t
	}

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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
