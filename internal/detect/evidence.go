package detect

import (
	"sort"
	"time"

	"sentraguard/internal/events"
)

func distinct(evts []events.Event, field func(events.Event) string) []string {
	seen := make(map[string]struct{})
	for _, e := range evts {
		v := field(e)
		if v == "" {
			continue
		}
		seen[v] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func actorOf(e events.Event) string  { return e.ActorID }
func ipOf(e events.Event) string     { return e.IPAddress }
func targetOf(e events.Event) string { return e.Target }

func detailString(key string) func(events.Event) string {
	return func(e events.Event) string {
		if v, ok := e.Details[key].(string); ok {
			return v
		}
		return ""
	}
}

func keys(counts map[string]int) []string {
	out := make([]string, 0, len(counts))
	for k := range counts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sum(counts map[string]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

func windowDetails(now time.Time, window time.Duration) map[string]interface{} {
	return map[string]interface{}{
		"window_start": now.Add(-window).UTC().Format(time.RFC3339),
		"window_end":   now.UTC().Format(time.RFC3339),
	}
}

func recent(kinds ...string) func(now time.Time, window time.Duration) events.Filter {
	return func(now time.Time, window time.Duration) events.Filter {
		return events.Filter{Kinds: kinds, Since: now.Add(-window), Until: now}
	}
}
