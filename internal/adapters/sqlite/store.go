// Package sqlite implements the durable store tier on SQLite. It backs the
// RecordStore, ArtifactStore and ContractStore ports with a single database
// file, which keeps the runtime deployable as one process plus one file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/graft/pkg/domain"
	_ "github.com/mattn/go-sqlite3"
)

// Store implements ports.RecordStore, ports.ArtifactStore and
// ports.ContractStore using SQLite.
type Store struct {
	db *sql.DB
}

// New initializes the SQLite database at the given path, creating the
// schema if needed.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent executions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		kind       TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      BLOB NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (kind, key)
	);

	CREATE TABLE IF NOT EXISTS artifacts (
		tenant_id   TEXT NOT NULL,
		artifact_id TEXT NOT NULL,
		doc         BLOB NOT NULL,
		updated_at  INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, artifact_id)
	);

	CREATE TABLE IF NOT EXISTS artifact_index (
		tenant_id       TEXT NOT NULL,
		artifact_id     TEXT NOT NULL,
		artifact_type   TEXT NOT NULL,
		lifecycle_state TEXT NOT NULL,
		created_at      INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, artifact_id)
	);
	CREATE INDEX IF NOT EXISTS idx_artifact_discovery
		ON artifact_index (tenant_id, artifact_type, lifecycle_state, created_at);

	CREATE TABLE IF NOT EXISTS contracts (
		tenant_id     TEXT NOT NULL,
		contract_id   TEXT NOT NULL,
		artifact_id   TEXT NOT NULL,
		status        TEXT NOT NULL,
		created_at    INTEGER NOT NULL,
		expires_at    INTEGER NOT NULL,
		authorized_at INTEGER,
		PRIMARY KEY (tenant_id, contract_id)
	);
	CREATE INDEX IF NOT EXISTS idx_contracts_pending
		ON contracts (status, expires_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- RecordStore ---

// PutRecord upserts an opaque document under (kind, key).
func (s *Store) PutRecord(ctx context.Context, kind, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (kind, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		kind, key, value, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite put record %s/%s: %w", kind, key, err)
	}
	return nil
}

// GetRecord returns the document under (kind, key) or domain.ErrKeyNotFound.
func (s *Store) GetRecord(ctx context.Context, kind, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM records WHERE kind = ? AND key = ?`, kind, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get record %s/%s: %w", kind, key, err)
	}
	return value, nil
}

// --- ArtifactStore ---

// PutArtifact upserts the authoritative artifact record as a JSON document.
func (s *Store) PutArtifact(ctx context.Context, artifact *domain.Artifact) error {
	doc, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact %s: %w", artifact.ArtifactID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artifacts (tenant_id, artifact_id, doc, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id, artifact_id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		artifact.TenantID, artifact.ArtifactID, doc, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite put artifact %s: %w", artifact.ArtifactID, err)
	}
	return nil
}

// GetArtifact loads an artifact scoped to its tenant.
func (s *Store) GetArtifact(ctx context.Context, tenantID, artifactID string) (*domain.Artifact, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM artifacts WHERE tenant_id = ? AND artifact_id = ?`,
		tenantID, artifactID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get artifact %s: %w", artifactID, err)
	}

	var artifact domain.Artifact
	if err := json.Unmarshal(doc, &artifact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifact %s: %w", artifactID, err)
	}
	return &artifact, nil
}

// UpdateIndex upserts the secondary discovery row for the artifact.
func (s *Store) UpdateIndex(ctx context.Context, artifact *domain.Artifact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifact_index (tenant_id, artifact_id, artifact_type, lifecycle_state, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, artifact_id) DO UPDATE SET lifecycle_state = excluded.lifecycle_state`,
		artifact.TenantID, artifact.ArtifactID, artifact.ArtifactType,
		string(artifact.LifecycleState), artifact.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite update index %s: %w", artifact.ArtifactID, err)
	}
	return nil
}

// ListArtifacts serves discovery from the secondary index, joining back to
// the primary table for the full record. Order is oldest first, then ID,
// so pagination is stable.
func (s *Store) ListArtifacts(ctx context.Context, filter domain.ArtifactFilter) ([]*domain.Artifact, error) {
	query := `
		SELECT a.doc
		FROM artifact_index i
		JOIN artifacts a ON a.tenant_id = i.tenant_id AND a.artifact_id = i.artifact_id
		WHERE i.tenant_id = ?`
	args := []any{filter.TenantID}

	if filter.ArtifactType != "" {
		query += ` AND i.artifact_type = ?`
		args = append(args, filter.ArtifactType)
	}
	if filter.LifecycleState != "" {
		query += ` AND i.lifecycle_state = ?`
		args = append(args, string(filter.LifecycleState))
	}
	query += ` ORDER BY i.created_at, i.artifact_id LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*domain.Artifact
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("sqlite scan artifact: %w", err)
		}
		var artifact domain.Artifact
		if err := json.Unmarshal(doc, &artifact); err != nil {
			return nil, fmt.Errorf("failed to unmarshal artifact: %w", err)
		}
		artifacts = append(artifacts, &artifact)
	}
	return artifacts, rows.Err()
}

// --- ContractStore ---

// PutContract inserts a new boundary contract.
func (s *Store) PutContract(ctx context.Context, contract *domain.BoundaryContract) error {
	var authorizedAt any
	if contract.AuthorizedAt != nil {
		authorizedAt = contract.AuthorizedAt.UnixNano()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts (tenant_id, contract_id, artifact_id, status, created_at, expires_at, authorized_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		contract.TenantID, contract.ContractID, contract.ArtifactID, string(contract.Status),
		contract.CreatedAt.UnixNano(), contract.ExpiresAt.UnixNano(), authorizedAt)
	if err != nil {
		return fmt.Errorf("sqlite put contract %s: %w", contract.ContractID, err)
	}
	return nil
}

// GetContract loads a contract scoped to its tenant.
func (s *Store) GetContract(ctx context.Context, tenantID, contractID string) (*domain.BoundaryContract, error) {
	var (
		contract     domain.BoundaryContract
		status       string
		createdAt    int64
		expiresAt    int64
		authorizedAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT contract_id, artifact_id, tenant_id, status, created_at, expires_at, authorized_at
		FROM contracts WHERE tenant_id = ? AND contract_id = ?`,
		tenantID, contractID).Scan(
		&contract.ContractID, &contract.ArtifactID, &contract.TenantID,
		&status, &createdAt, &expiresAt, &authorizedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get contract %s: %w", contractID, err)
	}

	contract.Status = domain.ContractStatus(status)
	contract.CreatedAt = time.Unix(0, createdAt).UTC()
	contract.ExpiresAt = time.Unix(0, expiresAt).UTC()
	if authorizedAt.Valid {
		at := time.Unix(0, authorizedAt.Int64).UTC()
		contract.AuthorizedAt = &at
	}
	return &contract, nil
}

// MarkAuthorized flips the contract to authorized iff it is still pending.
// The conditional UPDATE is the atomic check-and-set that decides which of
// two racing authorize calls performs the transition.
func (s *Store) MarkAuthorized(ctx context.Context, tenantID, contractID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE contracts SET status = ?, authorized_at = ?
		WHERE tenant_id = ? AND contract_id = ? AND status = ?`,
		string(domain.ContractAuthorized), at.UnixNano(),
		tenantID, contractID, string(domain.ContractPendingAuthorization))
	if err != nil {
		return false, fmt.Errorf("sqlite authorize contract %s: %w", contractID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite authorize contract %s: %w", contractID, err)
	}
	return n > 0, nil
}

// ExpireOverdue bulk-expires pending contracts whose deadline has passed.
func (s *Store) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE contracts SET status = ?
		WHERE status = ? AND expires_at <= ?`,
		string(domain.ContractExpired), string(domain.ContractPendingAuthorization), now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite expire contracts: %w", err)
	}
	return res.RowsAffected()
}
