package detect

import (
	"context"
	"fmt"
	"time"

	"sentraguard/internal/events"
)

// BehaviorDetector looks for logins outside business hours and actors whose
// activity volume spikes.
type BehaviorDetector struct {
	th  BehaviorThresholds
	loc *time.Location
}

func NewBehaviorDetector(th BehaviorThresholds, loc *time.Location) *BehaviorDetector {
	if loc == nil {
		loc = time.Local
	}
	return &BehaviorDetector{th: th, loc: loc}
}

func (d *BehaviorDetector) Name() string       { return "behavior-analyst" }
func (d *BehaviorDetector) Category() Category { return CategoryBehavior }

func (d *BehaviorDetector) Detect(ctx context.Context, src EventSource, now time.Time) ([]Indicator, error) {
	var out []Indicator

	var (
		offHoursCount int
		offHours      []events.Event
	)
	for _, f := range d.offHoursFilters(now.Add(-d.th.LoginWindow), now) {
		n, err := src.Count(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("count off-hours logins: %w", err)
		}
		if n == 0 {
			continue
		}
		offHoursCount += n
		logins, err := src.List(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("list off-hours logins: %w", err)
		}
		offHours = append(offHours, logins...)
	}
	if offHoursCount > 0 {
		details := windowDetails(now, d.th.LoginWindow)
		details["off_hours_logins"] = offHoursCount
		details["actors"] = distinct(offHours, actorOf)
		details["ip_addresses"] = distinct(offHours, ipOf)
		details["business_hours"] = fmt.Sprintf("%02d:00-%02d:00 %s", d.th.BusinessStartHour, d.th.BusinessEndHour, d.loc)
		out = append(out, Indicator{
			Type:       ThreatOffHoursAccess,
			Severity:   SeverityMedium,
			Confidence: d.th.OffHoursConfidence,
			Details:    details,
			DetectedAt: now,
		})
	}

	perActor, err := src.CountBy(ctx, events.Filter{Since: now.Add(-d.th.VolumeWindow), Until: now}, events.GroupActor, d.th.VolumeMin)
	if err != nil {
		return nil, fmt.Errorf("count actions per actor: %w", err)
	}
	delete(perActor, "")
	for _, actor := range keys(perActor) {
		details := windowDetails(now, d.th.VolumeWindow)
		details["actor"] = actor
		details["actions"] = perActor[actor]
		out = append(out, Indicator{
			Type:       ThreatUnusualVolume,
			Severity:   SeverityHigh,
			Confidence: d.th.VolumeConfidence,
			Details:    details,
			DetectedAt: now,
		})
	}
	return out, nil
}

// offHoursFilters splits [start, end] on local hour boundaries and returns
// one login filter per run of hours outside business hours. Each run stops
// just before the next business hour begins.
func (d *BehaviorDetector) offHoursFilters(start, end time.Time) []events.Filter {
	var out []events.Filter
	var open *events.Filter
	for t := start; !t.After(end); {
		local := t.In(d.loc)
		next := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, d.loc).Add(time.Hour)
		off := d.outsideBusinessHours(t)
		switch {
		case off && open == nil:
			out = append(out, events.Filter{Kinds: []string{events.KindLogin}, Since: t})
			open = &out[len(out)-1]
		case !off && open != nil:
			open.Until = t.Add(-time.Nanosecond)
			open = nil
		}
		if !next.After(t) {
			next = t.Add(time.Hour)
		}
		if next.After(end) {
			break
		}
		t = next
	}
	if open != nil {
		open.Until = end
	}
	return out
}

func (d *BehaviorDetector) outsideBusinessHours(ts time.Time) bool {
	h := ts.In(d.loc).Hour()
	return h < d.th.BusinessStartHour || h >= d.th.BusinessEndHour
}
