package shutdown

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sentraguard/internal/db"
)

// Store persists shutdown_status and emergency_events rows.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const statusColumns = `id, is_shutdown, shutdown_level, reason, triggered_by, triggered_at,
	auto_restore_at, restored_by, resolved_at`

func (s *Store) Active(ctx context.Context) (*Status, error) {
	q := `SELECT ` + statusColumns + ` FROM shutdown_status WHERE is_shutdown LIMIT 1`
	st, err := scanStatus(s.db.QueryRowContext(ctx, q))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return st, err
}

func (s *Store) Insert(ctx context.Context, st *Status) error {
	const q = `
		INSERT INTO shutdown_status
		(id, is_shutdown, shutdown_level, reason, triggered_by, triggered_at, auto_restore_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`
	_, err := s.db.ExecContext(ctx, q, st.ID, st.IsShutdown, st.Level, st.Reason, st.TriggeredBy,
		st.TriggeredAt, nullTime(st.AutoRestoreAt))
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: concurrent insert", ErrConflict)
	}
	return err
}

// Resolve ends the status if it is still active. It reports whether a row changed.
func (s *Store) Resolve(ctx context.Context, id uuid.UUID, restoredBy string, at time.Time) (bool, error) {
	const q = `
		UPDATE shutdown_status SET is_shutdown = false, restored_by = $2, resolved_at = $3
		WHERE id = $1 AND is_shutdown
	`
	res, err := s.db.ExecContext(ctx, q, id, restoredBy, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) CreateEmergency(ctx context.Context, e *EmergencyEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Payload == nil {
		e.Payload = map[string]interface{}{}
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal emergency payload: %w", err)
	}
	var shutdownID uuid.NullUUID
	if e.ShutdownID != nil {
		shutdownID = uuid.NullUUID{UUID: *e.ShutdownID, Valid: true}
	}
	const q = `
		INSERT INTO emergency_events
		(id, shutdown_id, threat_type, severity, trigger_source, auto_shutdown, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`
	_, err = s.db.ExecContext(ctx, q, e.ID, shutdownID, e.ThreatType, e.Severity, e.TriggerSource,
		e.AutoShutdown, string(payload), e.CreatedAt)
	return err
}

func (s *Store) ResolveForShutdown(ctx context.Context, shutdownID uuid.UUID, at time.Time) error {
	const q = `UPDATE emergency_events SET resolved_at = $2 WHERE shutdown_id = $1 AND resolved_at IS NULL`
	_, err := s.db.ExecContext(ctx, q, shutdownID, at)
	return err
}

func (s *Store) ListEmergencies(ctx context.Context, since time.Time) ([]EmergencyEvent, error) {
	const q = `
		SELECT id, shutdown_id, threat_type, severity, trigger_source, auto_shutdown, payload,
		       created_at, resolved_at
		FROM emergency_events WHERE created_at >= $1 ORDER BY created_at DESC LIMIT 200
	`
	rows, err := s.db.QueryContext(ctx, q, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []EmergencyEvent
	for rows.Next() {
		var e EmergencyEvent
		var shutdownID uuid.NullUUID
		var payload []byte
		var resolved sql.NullTime
		if err := rows.Scan(&e.ID, &shutdownID, &e.ThreatType, &e.Severity, &e.TriggerSource,
			&e.AutoShutdown, &payload, &e.CreatedAt, &resolved); err != nil {
			return nil, err
		}
		if shutdownID.Valid {
			id := shutdownID.UUID
			e.ShutdownID = &id
		}
		if resolved.Valid {
			e.ResolvedAt = &resolved.Time
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, err
			}
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStatus(row rowScanner) (*Status, error) {
	var st Status
	var restoreAt, resolvedAt sql.NullTime
	var restoredBy sql.NullString
	if err := row.Scan(&st.ID, &st.IsShutdown, &st.Level, &st.Reason, &st.TriggeredBy, &st.TriggeredAt,
		&restoreAt, &restoredBy, &resolvedAt); err != nil {
		return nil, err
	}
	if restoreAt.Valid {
		st.AutoRestoreAt = &restoreAt.Time
	}
	if resolvedAt.Valid {
		st.ResolvedAt = &resolvedAt.Time
	}
	st.RestoredBy = restoredBy.String
	return &st, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
