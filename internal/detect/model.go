package detect

import (
	"context"
	"time"

	"sentraguard/internal/events"
)

type Severity string

const (
	SeverityLow       Severity = "low"
	SeverityMedium    Severity = "medium"
	SeverityHigh      Severity = "high"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

var severityRank = map[Severity]int{
	SeverityLow:       1,
	SeverityMedium:    2,
	SeverityHigh:      3,
	SeverityCritical:  4,
	SeverityEmergency: 5,
}

func (s Severity) Rank() int { return severityRank[s] }

// AtLeast reports whether s is as severe as min or more.
func (s Severity) AtLeast(min Severity) bool { return s.Rank() >= min.Rank() }

// RequiresHumanReview is true for critical and emergency findings.
func (s Severity) RequiresHumanReview() bool { return s.AtLeast(SeverityCritical) }

type ThreatType string

const (
	ThreatAuthenticationAttack ThreatType = "authentication_attack"
	ThreatPrivilegeEscalation  ThreatType = "privilege_escalation"
	ThreatDataExfiltration     ThreatType = "data_exfiltration"
	ThreatBulkManipulation     ThreatType = "bulk_data_manipulation"
	ThreatOffHoursAccess       ThreatType = "off_hours_access"
	ThreatUnusualVolume        ThreatType = "unusual_activity_volume"
	ThreatRateLimitAbuse       ThreatType = "rate_limit_abuse"
	ThreatBotActivity          ThreatType = "bot_activity"
	ThreatGeoAnomaly           ThreatType = "geo_anomaly"
)

// Category is a detector family. Each family is owned by one bot.
type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryDataProtection Category = "data_protection"
	CategoryBehavior       Category = "behavior"
	CategoryNetwork        Category = "network"
)

var Categories = []Category{
	CategoryAuthentication,
	CategoryDataProtection,
	CategoryBehavior,
	CategoryNetwork,
}

var threatCategory = map[ThreatType]Category{
	ThreatAuthenticationAttack: CategoryAuthentication,
	ThreatPrivilegeEscalation:  CategoryAuthentication,
	ThreatDataExfiltration:     CategoryDataProtection,
	ThreatBulkManipulation:     CategoryDataProtection,
	ThreatOffHoursAccess:       CategoryBehavior,
	ThreatUnusualVolume:        CategoryBehavior,
	ThreatRateLimitAbuse:       CategoryNetwork,
	ThreatBotActivity:          CategoryNetwork,
	ThreatGeoAnomaly:           CategoryNetwork,
}

// Category returns the family that owns t.
func (t ThreatType) Category() (Category, bool) {
	c, ok := threatCategory[t]
	return c, ok
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Indicator is a suspected threat produced during one scan cycle.
type Indicator struct {
	Type       ThreatType             `json:"type"`
	Severity   Severity               `json:"severity"`
	Confidence int                    `json:"confidence"`
	Details    map[string]interface{} `json:"details"`
	DetectedAt time.Time              `json:"detected_at"`
}

// EventSource is the read side of the event log. Thresholds are decided on
// Count and CountBy; List is capped and only feeds the distinct sets in
// indicator details.
type EventSource interface {
	List(ctx context.Context, f events.Filter) ([]events.Event, error)
	Count(ctx context.Context, f events.Filter) (int, error)
	CountBy(ctx context.Context, f events.Filter, g events.GroupBy, min int) (map[string]int, error)
}

// Detector evaluates one rule family over recent events. Implementations hold
// only immutable configuration and are safe to run concurrently.
type Detector interface {
	Name() string
	Category() Category
	Detect(ctx context.Context, src EventSource, now time.Time) ([]Indicator, error)
}
