package shutdown

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"sentraguard/internal/detect"
)

type Level string

const (
	LevelPartial  Level = "partial"
	LevelComplete Level = "complete"
)

func (l Level) Valid() bool { return l == LevelPartial || l == LevelComplete }

// State is the operating state derived from the active status row.
type State string

const (
	StateOperational      State = "operational"
	StatePartialShutdown  State = "partial_shutdown"
	StateCompleteShutdown State = "complete_shutdown"
)

var (
	// ErrForbidden is returned when the actor may not operate shutdown controls.
	ErrForbidden = errors.New("shutdown: actor not authorized")
	// ErrConflict is returned when another shutdown is already active.
	ErrConflict = errors.New("shutdown: conflicting shutdown already active")
	// ErrInvalidRequest covers malformed requests such as an automatic complete shutdown.
	ErrInvalidRequest = errors.New("shutdown: invalid request")
)

const (
	ThreatManualShutdown detect.ThreatType = "manual_shutdown"

	// AutoRestoreActor is recorded as restored_by when a deadline elapses.
	AutoRestoreActor = "system:auto_restore"

	botSourcePrefix = "bot:"
)

// BotSource is the trigger source recorded for automatic requests.
func BotSource(c detect.Category) string { return botSourcePrefix + string(c) }

// Status is the single active shutdown record.
type Status struct {
	ID            uuid.UUID  `json:"id"`
	IsShutdown    bool       `json:"is_shutdown"`
	Level         Level      `json:"shutdown_level"`
	Reason        string     `json:"reason"`
	TriggeredBy   string     `json:"triggered_by"`
	TriggeredAt   time.Time  `json:"triggered_at"`
	AutoRestoreAt *time.Time `json:"auto_restore_at,omitempty"`
	RestoredBy    string     `json:"restored_by,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

func (s *Status) State() State {
	if s == nil || !s.IsShutdown {
		return StateOperational
	}
	if s.Level == LevelComplete {
		return StateCompleteShutdown
	}
	return StatePartialShutdown
}

// Due reports whether the auto-restore deadline has passed at now.
func (s *Status) Due(now time.Time) bool {
	return s != nil && s.IsShutdown && s.AutoRestoreAt != nil && !now.Before(*s.AutoRestoreAt)
}

// EmergencyEvent records a condition that requested a shutdown.
type EmergencyEvent struct {
	ID            uuid.UUID              `json:"id"`
	ShutdownID    *uuid.UUID             `json:"shutdown_id,omitempty"`
	ThreatType    detect.ThreatType      `json:"threat_type"`
	Severity      detect.Severity        `json:"severity"`
	TriggerSource string                 `json:"trigger_source"`
	AutoShutdown  bool                   `json:"auto_shutdown"`
	Payload       map[string]interface{} `json:"payload"`
	CreatedAt     time.Time              `json:"created_at"`
	ResolvedAt    *time.Time             `json:"resolved_at,omitempty"`
}

// Request asks the machine to leave the operational state.
type Request struct {
	Level       Level
	Reason      string
	TriggeredBy string
	Automatic   bool
	ThreatType  detect.ThreatType
	Severity    detect.Severity
	Payload     map[string]interface{}
	// RestoreAfter overrides the default window for manual partial requests.
	RestoreAfter time.Duration
}

// Change is announced after every transition.
type Change struct {
	Action string  `json:"action"`
	State  State   `json:"state"`
	Status *Status `json:"status"`
}
