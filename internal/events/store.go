package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// maxListLimit caps List only. Count and CountBy aggregate in the database
// and see every matching row.
const maxListLimit = 5000

// GroupBy names the column CountBy groups on.
type GroupBy string

const (
	GroupActor  GroupBy = "actor_id"
	GroupTarget GroupBy = "target"
	GroupKind   GroupBy = "kind"
)

func (g GroupBy) Valid() bool {
	switch g {
	case GroupActor, GroupTarget, GroupKind:
		return true
	}
	return false
}

func (g GroupBy) of(e Event) string {
	switch g {
	case GroupActor:
		return e.ActorID
	case GroupTarget:
		return e.Target
	default:
		return e.Kind
	}
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// where builds the WHERE clause for f. The limit is not part of it.
func where(f Filter) (string, []interface{}) {
	clauses := []string{"1=1"}
	args := []interface{}{}
	argIdx := 1

	if len(f.Kinds) > 0 {
		clauses = append(clauses, "kind = ANY($"+itoa(argIdx)+")")
		args = append(args, pq.Array(f.Kinds))
		argIdx++
	}
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id = $"+itoa(argIdx))
		args = append(args, f.ActorID)
		argIdx++
	}
	if len(f.Targets) > 0 {
		clauses = append(clauses, "target = ANY($"+itoa(argIdx)+")")
		args = append(args, pq.Array(f.Targets))
		argIdx++
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "ts >= $"+itoa(argIdx))
		args = append(args, f.Since)
		argIdx++
	}
	if !f.Until.IsZero() {
		clauses = append(clauses, "ts <= $"+itoa(argIdx))
		args = append(args, f.Until)
	}
	return strings.Join(clauses, " AND "), args
}

// List returns events matching f, newest first, at most maxListLimit rows.
// Safe for concurrent use.
func (s *Store) List(ctx context.Context, f Filter) ([]Event, error) {
	clause, args := where(f)

	limit := f.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	query := "SELECT id, kind, actor_id, target, ip_address, ts, details, created_at FROM events WHERE " +
		clause + " ORDER BY ts DESC LIMIT " + itoa(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Event
	for rows.Next() {
		var e Event
		var detailsJSON []byte
		if err := rows.Scan(&e.ID, &e.Kind, &e.ActorID, &e.Target, &e.IPAddress,
			&e.Timestamp, &detailsJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
				return nil, err
			}
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Count returns the number of events matching f. f.Limit is ignored.
func (s *Store) Count(ctx context.Context, f Filter) (int, error) {
	clause, args := where(f)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM events WHERE "+clause, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountBy counts events matching f per value of g, keeping groups with at
// least min rows. f.Limit is ignored.
func (s *Store) CountBy(ctx context.Context, f Filter, g GroupBy, min int) (map[string]int, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("unknown group column %q", g)
	}
	clause, args := where(f)
	args = append(args, min)
	query := "SELECT " + string(g) + ", count(*) FROM events WHERE " + clause +
		" GROUP BY " + string(g) + " HAVING count(*) >= $" + itoa(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
