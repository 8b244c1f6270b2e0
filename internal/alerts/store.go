package alerts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, a *Alert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Details == nil {
		a.Details = map[string]interface{}{}
	}
	detailsJSON, err := json.Marshal(a.Details)
	if err != nil {
		return fmt.Errorf("marshal alert details: %w", err)
	}
	const q = `
		INSERT INTO alerts
		(id, bot_id, cycle_id, threat_type, severity, title, description, confidence_score,
		 details, requires_human_review, auto_response_taken, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`
	_, err = s.db.ExecContext(ctx, q,
		a.ID,
		a.BotID,
		a.CycleID,
		a.ThreatType,
		a.Severity,
		a.Title,
		a.Description,
		a.ConfidenceScore,
		string(detailsJSON),
		a.RequiresHumanReview,
		a.AutoResponseTaken,
		a.CreatedAt,
	)
	return err
}

func (s *Store) MarkAutoResponse(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE alerts SET auto_response_taken = true WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("alert %s not found", id)
	}
	return nil
}

func (s *Store) CreateNotification(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const q = `
		INSERT INTO notifications (id, alert_id, severity, title, message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`
	_, err := s.db.ExecContext(ctx, q, n.ID, n.AlertID, n.Severity, n.Title, n.Message, n.CreatedAt)
	return err
}

func (s *Store) List(ctx context.Context, f ListFilter) ([]Alert, error) {
	clauses := []string{"1=1"}
	args := []interface{}{}
	idx := 1
	if !f.Since.IsZero() {
		clauses = append(clauses, "created_at >= $"+strconv.Itoa(idx))
		args = append(args, f.Since)
		idx++
	}
	if f.Severity != "" {
		clauses = append(clauses, "severity = $"+strconv.Itoa(idx))
		args = append(args, f.Severity)
		idx++
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := "SELECT id, bot_id, cycle_id, threat_type, severity, title, description, confidence_score," +
		" details, requires_human_review, auto_response_taken, created_at" +
		" FROM alerts WHERE " + strings.Join(clauses, " AND ") +
		" ORDER BY created_at DESC LIMIT " + strconv.Itoa(limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Alert
	for rows.Next() {
		var a Alert
		var detailsJSON []byte
		if err := rows.Scan(&a.ID, &a.BotID, &a.CycleID, &a.ThreatType, &a.Severity, &a.Title,
			&a.Description, &a.ConfidenceScore, &detailsJSON, &a.RequiresHumanReview,
			&a.AutoResponseTaken, &a.CreatedAt); err != nil {
			return nil, err
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &a.Details); err != nil {
				return nil, err
			}
		}
		res = append(res, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
