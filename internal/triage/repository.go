package triage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrCaseNotFound = errors.New("case not found")
	// ErrStaleCase is returned when a save is based on an outdated version.
	ErrStaleCase = errors.New("case was modified concurrently")
)

// Repository is the case store. Save persists the whole snapshot and bumps
// Version; it fails with ErrStaleCase if the stored version moved on.
type Repository interface {
	Get(ctx context.Context, id string) (*Case, error)
	Save(ctx context.Context, c *Case) error
}

type postgresRepo struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) Repository {
	return &postgresRepo{db: db}
}

func (r *postgresRepo) Get(ctx context.Context, id string) (*Case, error) {
	query := `SELECT id, user_id, turns, symptom_frame, triage, action, summary, status, version, created_at, updated_at
		FROM cases WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	var c Case
	var turnsJSON, frameJSON, triageJSON, actionJSON, summaryJSON []byte

	err := row.Scan(
		&c.ID,
		&c.UserID,
		&turnsJSON,
		&frameJSON,
		&triageJSON,
		&actionJSON,
		&summaryJSON,
		&c.Status,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCaseNotFound
		}
		return nil, err
	}

	columns := []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"turns", turnsJSON, &c.Turns},
		{"symptom_frame", frameJSON, &c.SymptomFrame},
		{"triage", triageJSON, &c.Triage},
		{"action", actionJSON, &c.Action},
		{"summary", summaryJSON, &c.Summary},
	}
	for _, col := range columns {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", col.name, err)
		}
	}
	if c.Turns == nil {
		c.Turns = []Turn{}
	}

	return &c, nil
}

func (r *postgresRepo) Save(ctx context.Context, c *Case) error {
	turnsJSON, err := json.Marshal(c.Turns)
	if err != nil {
		return err
	}
	frameJSON, err := json.Marshal(c.SymptomFrame)
	if err != nil {
		return err
	}
	triageJSON, err := json.Marshal(c.Triage)
	if err != nil {
		return err
	}
	actionJSON, err := json.Marshal(c.Action)
	if err != nil {
		return err
	}
	summaryJSON, err := json.Marshal(c.Summary)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}

	query := `
		INSERT INTO cases (id, user_id, turns, symptom_frame, triage, action, summary, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9 + 1, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			user_id = CASE WHEN cases.user_id = '' THEN EXCLUDED.user_id ELSE cases.user_id END,
			turns = EXCLUDED.turns,
			symptom_frame = EXCLUDED.symptom_frame,
			triage = EXCLUDED.triage,
			action = EXCLUDED.action,
			summary = EXCLUDED.summary,
			status = EXCLUDED.status,
			version = cases.version + 1,
			updated_at = EXCLUDED.updated_at
		WHERE cases.version = $9
	`
	res, err := r.db.ExecContext(ctx, query,
		c.ID, c.UserID, turnsJSON, frameJSON, triageJSON, actionJSON, summaryJSON, c.Status, c.Version, c.CreatedAt, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleCase
	}
	c.Version++
	c.UpdatedAt = now
	return nil
}
