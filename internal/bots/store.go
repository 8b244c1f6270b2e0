package bots

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureDefaults provisions missing bots. Existing rows are left untouched.
func (s *Store) EnsureDefaults(ctx context.Context, defaults []Bot) error {
	const q = `
		INSERT INTO bots (id, name, category, status, sensitivity, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (category) DO NOTHING
	`
	now := time.Now().UTC()
	for _, b := range defaults {
		if _, err := s.db.ExecContext(ctx, q, b.ID, b.Name, b.Category, b.Status, b.Sensitivity, now); err != nil {
			return fmt.Errorf("provision bot %s: %w", b.ID, err)
		}
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]Bot, error) {
	return s.list(ctx, "")
}

func (s *Store) ListActive(ctx context.Context) ([]Bot, error) {
	return s.list(ctx, StatusActive)
}

func (s *Store) list(ctx context.Context, status Status) ([]Bot, error) {
	q := `SELECT id, name, category, status, sensitivity, scans_completed, alerts_generated,
		last_activity, created_at FROM bots`
	args := []interface{}{}
	if status != "" {
		q += ` WHERE status = $1`
		args = append(args, status)
	}
	q += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Bot
	for rows.Next() {
		var b Bot
		var last sql.NullTime
		if err := rows.Scan(&b.ID, &b.Name, &b.Category, &b.Status, &b.Sensitivity,
			&b.ScansCompleted, &b.AlertsGenerated, &last, &b.CreatedAt); err != nil {
			return nil, err
		}
		if last.Valid {
			b.LastActivity = &last.Time
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func (s *Store) RecordScan(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE bots SET scans_completed = scans_completed + 1, last_activity = $2 WHERE id = $1`
	return s.exec(ctx, q, id, at)
}

func (s *Store) IncrementAlerts(ctx context.Context, id string, n int, at time.Time) error {
	const q = `UPDATE bots SET alerts_generated = alerts_generated + $2, last_activity = $3 WHERE id = $1`
	return s.exec(ctx, q, id, n, at)
}

func (s *Store) SetStatus(ctx context.Context, id string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid bot status %q", status)
	}
	const q = `UPDATE bots SET status = $2 WHERE id = $1`
	return s.exec(ctx, q, id, status)
}

func (s *Store) SetSensitivity(ctx context.Context, id string, level Sensitivity) error {
	if !level.Valid() {
		return fmt.Errorf("invalid bot sensitivity %q", level)
	}
	const q = `UPDATE bots SET sensitivity = $2 WHERE id = $1`
	return s.exec(ctx, q, id, level)
}

func (s *Store) exec(ctx context.Context, q string, id string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, q, append([]interface{}{id}, args...)...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("bot %s not found", id)
	}
	return nil
}
