package detect

import (
	"context"
	"fmt"
	"time"

	"sentraguard/internal/events"
)

// AuthDetector watches for brute force logins and role changes.
type AuthDetector struct {
	th AuthThresholds
}

func NewAuthDetector(th AuthThresholds) *AuthDetector {
	return &AuthDetector{th: th}
}

func (d *AuthDetector) Name() string       { return "authentication-guardian" }
func (d *AuthDetector) Category() Category { return CategoryAuthentication }

func (d *AuthDetector) Detect(ctx context.Context, src EventSource, now time.Time) ([]Indicator, error) {
	var out []Indicator

	failedFilter := recent(events.KindFailedLogin)(now, d.th.FailedLoginWindow)
	n, err := src.Count(ctx, failedFilter)
	if err != nil {
		return nil, fmt.Errorf("count failed logins: %w", err)
	}
	if n >= d.th.FailedLoginCritical && n > 0 {
		failed, err := src.List(ctx, failedFilter)
		if err != nil {
			return nil, fmt.Errorf("list failed logins: %w", err)
		}
		severity := SeverityCritical
		if n >= d.th.FailedLoginEmergency {
			severity = SeverityEmergency
		}
		details := windowDetails(now, d.th.FailedLoginWindow)
		details["failed_attempts"] = n
		details["actors"] = distinct(failed, actorOf)
		details["ip_addresses"] = distinct(failed, ipOf)
		out = append(out, Indicator{
			Type:       ThreatAuthenticationAttack,
			Severity:   severity,
			Confidence: d.th.FailedLoginConfidence,
			Details:    details,
			DetectedAt: now,
		})
	}

	changeFilter := recent(events.KindRoleChange)(now, d.th.RoleChangeWindow)
	n, err = src.Count(ctx, changeFilter)
	if err != nil {
		return nil, fmt.Errorf("count role changes: %w", err)
	}
	if n >= d.th.RoleChangeMin && n > 0 {
		changes, err := src.List(ctx, changeFilter)
		if err != nil {
			return nil, fmt.Errorf("list role changes: %w", err)
		}
		details := windowDetails(now, d.th.RoleChangeWindow)
		details["role_changes"] = n
		details["actors"] = distinct(changes, actorOf)
		details["targets"] = distinct(changes, targetOf)
		details["new_roles"] = distinct(changes, detailString("new_role"))
		out = append(out, Indicator{
			Type:       ThreatPrivilegeEscalation,
			Severity:   SeverityCritical,
			Confidence: d.th.RoleChangeConfidence,
			Details:    details,
			DetectedAt: now,
		})
	}
	return out, nil
}
