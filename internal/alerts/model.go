package alerts

import (
	"time"

	"github.com/google/uuid"

	"sentraguard/internal/detect"
)

// Alert is the audit record of one indicator. Only AutoResponseTaken ever
// changes after insert.
type Alert struct {
	ID                  uuid.UUID              `json:"id"`
	BotID               string                 `json:"bot_id"`
	CycleID             uuid.UUID              `json:"cycle_id"`
	ThreatType          detect.ThreatType      `json:"threat_type"`
	Severity            detect.Severity        `json:"severity"`
	Title               string                 `json:"title"`
	Description         string                 `json:"description"`
	ConfidenceScore     int                    `json:"confidence_score"`
	Details             map[string]interface{} `json:"details"`
	RequiresHumanReview bool                   `json:"requires_human_review"`
	AutoResponseTaken   bool                   `json:"auto_response_taken"`
	CreatedAt           time.Time              `json:"created_at"`
}

// Notification is the real-time display record emitted for every alert.
type Notification struct {
	ID        uuid.UUID       `json:"id"`
	AlertID   uuid.UUID       `json:"alert_id"`
	Severity  detect.Severity `json:"severity"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	CreatedAt time.Time       `json:"created_at"`
}

type ListFilter struct {
	Since    time.Time
	Severity detect.Severity
	Limit    int
}
