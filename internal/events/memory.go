package events

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process event log with the same filter semantics as Store.
// It backs tests and local dry runs.
type Memory struct {
	mu     sync.RWMutex
	nextID int64
	events []Event
}

func NewMemory(evts ...Event) *Memory {
	m := &Memory{}
	m.Append(evts...)
	return m
}

func (m *Memory) Append(evts ...Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range evts {
		m.nextID++
		if e.ID == 0 {
			e.ID = m.nextID
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = e.Timestamp
		}
		m.events = append(m.events, e)
	}
}

func (m *Memory) List(ctx context.Context, f Filter) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Event
	for _, e := range m.events {
		if matches(e, f) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	limit := f.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Count(ctx context.Context, f Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, e := range m.events {
		if matches(e, f) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountBy(ctx context.Context, f Filter, g GroupBy, min int) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !g.Valid() {
		return nil, fmt.Errorf("unknown group column %q", g)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, e := range m.events {
		if matches(e, f) {
			counts[g.of(e)]++
		}
	}
	for k, n := range counts {
		if n < min {
			delete(counts, k)
		}
	}
	return counts, nil
}

func matches(e Event, f Filter) bool {
	if len(f.Kinds) > 0 && !contains(f.Kinds, e.Kind) {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if len(f.Targets) > 0 && !contains(f.Targets, e.Target) {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
