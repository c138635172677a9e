package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"checkin/internal/roster/models"
	"checkin/pkg/platform/sentinel"
)

// PostgresStore persists candidates in PostgreSQL. Raw roster fields live in a
// JSONB column under their imported names; the ledger lives beside them.
// This store is pure I/O; ledger rules belong to the models and service.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed candidate store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const candidateColumns = `id, fields, last_check_in, check_in_count, check_ins, version, created_at, updated_at`

// Insert adds a raw roster row with a time-ordered id.
func (s *PostgresStore) Insert(ctx context.Context, fields models.Record) (*models.Candidate, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate candidate id: %w", err)
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal candidate fields: %w", err)
	}
	query := `
		INSERT INTO candidates (id, fields)
		VALUES ($1, $2)
		RETURNING ` + candidateColumns
	c, err := scanCandidate(s.db.QueryRowContext(ctx, query, id, string(payload)))
	if err != nil {
		return nil, fmt.Errorf("insert candidate: %w", classify(err))
	}
	return c, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE id = $1`
	c, err := scanCandidate(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find candidate by id: %w", classify(err))
	}
	return c, nil
}

// FindByAliasValue returns candidates holding value under any of keys, in id order.
// fields->>key renders JSON numbers without quotes, so numeric phone cells match.
func (s *PostgresStore) FindByAliasValue(ctx context.Context, keys []string, value string) ([]*models.Candidate, error) {
	query := `
		SELECT ` + candidateColumns + `
		FROM candidates c
		WHERE EXISTS (
			SELECT 1 FROM unnest($1::text[]) AS k(key)
			WHERE btrim(c.fields->>k.key) = $2
		)
		ORDER BY c.id`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(keys), value)
	if err != nil {
		return nil, fmt.Errorf("find candidates by alias: %w", classify(err))
	}
	defer rows.Close()
	return collect(rows)
}

// UpdateIfVersion writes c only if the stored version still equals c.Version.
// A lost race returns sentinel.ErrConflict; the caller re-reads and re-applies.
func (s *PostgresStore) UpdateIfVersion(ctx context.Context, c *models.Candidate) error {
	fields, err := json.Marshal(c.Fields)
	if err != nil {
		return fmt.Errorf("marshal candidate fields: %w", err)
	}
	checkIns, err := json.Marshal(nonNilEvents(c.CheckIns))
	if err != nil {
		return fmt.Errorf("marshal check-ins: %w", err)
	}
	query := `
		UPDATE candidates
		SET fields = $3,
			last_check_in = $4,
			check_in_count = $5,
			check_ins = $6,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`
	var lastCheckIn sql.NullTime
	if c.LastCheckIn != nil {
		lastCheckIn = sql.NullTime{Time: *c.LastCheckIn, Valid: true}
	}
	var version int64
	var updatedAt time.Time
	err = s.db.QueryRowContext(ctx, query, c.ID, c.Version, string(fields), lastCheckIn, c.CheckInCount, string(checkIns)).
		Scan(&version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM candidates WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check candidate exists: %w", classify(err))
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update candidate: %w", classify(err))
	}
	c.Version = version
	c.UpdatedAt = updatedAt
	return nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+candidateColumns+` FROM candidates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", classify(err))
	}
	defer rows.Close()
	return collect(rows)
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM candidates`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count candidates: %w", classify(err))
	}
	return n, nil
}

type candidateRow interface {
	Scan(dest ...any) error
}

func scanCandidate(row candidateRow) (*models.Candidate, error) {
	var c models.Candidate
	var fields, checkIns []byte
	var lastCheckIn sql.NullTime
	if err := row.Scan(&c.ID, &fields, &lastCheckIn, &c.CheckInCount, &checkIns, &c.Version, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(fields))
	dec.UseNumber()
	if err := dec.Decode(&c.Fields); err != nil {
		return nil, fmt.Errorf("decode candidate fields: %w", err)
	}
	if err := json.Unmarshal(checkIns, &c.CheckIns); err != nil {
		return nil, fmt.Errorf("decode check-ins: %w", err)
	}
	if lastCheckIn.Valid {
		t := lastCheckIn.Time
		c.LastCheckIn = &t
	}
	return &c, nil
}

func collect(rows *sql.Rows) ([]*models.Candidate, error) {
	var out []*models.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", classify(err))
	}
	return out, nil
}

func nonNilEvents(events []models.CheckInEvent) []models.CheckInEvent {
	if events == nil {
		return []models.CheckInEvent{}
	}
	return events
}

// classify marks connection-level failures as sentinel.ErrUnavailable so the
// service can report a retryable error instead of an internal one.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return errors.Join(sentinel.ErrUnavailable, err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return errors.Join(sentinel.ErrUnavailable, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return errors.Join(sentinel.ErrUnavailable, err)
	}
	return err
}
