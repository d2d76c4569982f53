package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"collabtext/internal/ot"
)

const schema = `
CREATE TABLE IF NOT EXISTS document_events (
	id             BIGSERIAL PRIMARY KEY,
	doc_id         TEXT        NOT NULL,
	version        INT         NOT NULL,
	client_id      TEXT        NOT NULL,
	client_version INT         NOT NULL,
	request_id     TEXT        NOT NULL,
	op             JSONB       NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (doc_id, version)
);
CREATE INDEX IF NOT EXISTS document_events_doc_idx ON document_events (doc_id, id);

CREATE TABLE IF NOT EXISTS document_snapshots (
	doc_id     TEXT        PRIMARY KEY,
	content    TEXT        NOT NULL,
	version    INT         NOT NULL,
	log_pos    BIGINT      NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore persists events and snapshots in PostgreSQL via a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to url and ensures the schema exists.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, docID string, rec Record) (int64, error) {
	opJSON, err := json.Marshal(rec.Op)
	if err != nil {
		return 0, fmt.Errorf("%w: encode op: %v", ErrAppendFailed, err)
	}
	var pos int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO document_events (doc_id, version, client_id, client_version, request_id, op)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		docID, rec.NewVersion, rec.ClientID, rec.ClientVersion, rec.RequestID, opJSON,
	).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}
	return pos, nil
}

func (s *PostgresStore) LoadLatestSnapshot(ctx context.Context, docID string) (*Snapshot, error) {
	var snap Snapshot
	err := s.pool.QueryRow(ctx,
		`SELECT content, version, log_pos FROM document_snapshots WHERE doc_id = $1`,
		docID,
	).Scan(&snap.Content, &snap.Version, &snap.LogPos)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return &snap, nil
}

func (s *PostgresStore) ReplayEventsSince(ctx context.Context, docID string, logPos int64) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, version, client_id, client_version, request_id, op
		 FROM document_events WHERE doc_id = $1 AND id > $2 ORDER BY id`,
		docID, logPos,
	)
	if err != nil {
		return nil, fmt.Errorf("replay events: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		var opJSON []byte
		if err := rows.Scan(&rec.LogPos, &rec.NewVersion, &rec.ClientID, &rec.ClientVersion, &rec.RequestID, &opJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var op ot.Operation
		if err := json.Unmarshal(opJSON, &op); err != nil {
			return nil, fmt.Errorf("decode op at log position %d: %w", rec.LogPos, err)
		}
		rec.Op = op
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("replay events: %w", err)
	}
	return recs, nil
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, docID string, snap Snapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO document_snapshots (doc_id, content, version, log_pos, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (doc_id) DO UPDATE
		 SET content = EXCLUDED.content, version = EXCLUDED.version,
		     log_pos = EXCLUDED.log_pos, updated_at = now()`,
		docID, snap.Content, snap.Version, snap.LogPos,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
