package detect

import (
	"context"
	"fmt"
	"time"

	"sentraguard/internal/events"
)

// NetworkDetector covers rate limiting, automated clients and geo anomalies.
type NetworkDetector struct {
	th NetworkThresholds
}

func NewNetworkDetector(th NetworkThresholds) *NetworkDetector {
	return &NetworkDetector{th: th}
}

func (d *NetworkDetector) Name() string       { return "network-watchdog" }
func (d *NetworkDetector) Category() Category { return CategoryNetwork }

func (d *NetworkDetector) Detect(ctx context.Context, src EventSource, now time.Time) ([]Indicator, error) {
	var out []Indicator

	limitedFilter := recent(events.KindRateLimited)(now, d.th.RateLimitWindow)
	n, err := src.Count(ctx, limitedFilter)
	if err != nil {
		return nil, fmt.Errorf("count rate limited requests: %w", err)
	}
	if n >= d.th.RateLimitMin && n > 0 {
		limited, err := src.List(ctx, limitedFilter)
		if err != nil {
			return nil, fmt.Errorf("list rate limited requests: %w", err)
		}
		details := windowDetails(now, d.th.RateLimitWindow)
		details["rate_limited_requests"] = n
		details["ip_addresses"] = distinct(limited, ipOf)
		details["endpoints"] = distinct(limited, targetOf)
		details["suspected_ddos"] = n >= d.th.RateLimitDDoS
		out = append(out, Indicator{
			Type:       ThreatRateLimitAbuse,
			Severity:   SeverityHigh,
			Confidence: d.th.RateLimitConfidence,
			Details:    details,
			DetectedAt: now,
		})
	}

	botsFilter := recent(events.KindBotDetected)(now, d.th.BotWindow)
	n, err = src.Count(ctx, botsFilter)
	if err != nil {
		return nil, fmt.Errorf("count bot-like requests: %w", err)
	}
	if n >= d.th.BotMin && n > 0 {
		bots, err := src.List(ctx, botsFilter)
		if err != nil {
			return nil, fmt.Errorf("list bot-like requests: %w", err)
		}
		details := windowDetails(now, d.th.BotWindow)
		details["flagged_requests"] = n
		details["ip_addresses"] = distinct(bots, ipOf)
		details["user_agents"] = distinct(bots, detailString("user_agent"))
		out = append(out, Indicator{
			Type:       ThreatBotActivity,
			Severity:   SeverityMedium,
			Confidence: d.th.BotConfidence,
			Details:    details,
			DetectedAt: now,
		})
	}

	geoFilter := recent(events.KindGeoAnomaly)(now, d.th.GeoWindow)
	n, err = src.Count(ctx, geoFilter)
	if err != nil {
		return nil, fmt.Errorf("count geo anomalies: %w", err)
	}
	if n >= d.th.GeoMin && n > 0 {
		geo, err := src.List(ctx, geoFilter)
		if err != nil {
			return nil, fmt.Errorf("list geo anomalies: %w", err)
		}
		details := windowDetails(now, d.th.GeoWindow)
		details["anomalies"] = n
		details["actors"] = distinct(geo, actorOf)
		details["ip_addresses"] = distinct(geo, ipOf)
		details["countries"] = distinct(geo, detailString("country"))
		out = append(out, Indicator{
			Type:       ThreatGeoAnomaly,
			Severity:   SeverityHigh,
			Confidence: d.th.GeoConfidence,
			Details:    details,
			DetectedAt: now,
		})
	}
	return out, nil
}
