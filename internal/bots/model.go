package bots

import (
	"time"

	"sentraguard/internal/detect"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

func (s Status) Valid() bool { return s == StatusActive || s == StatusDisabled }

// Sensitivity scales the minimum counts of the bot's detector.
type Sensitivity = detect.Sensitivity

const (
	SensitivityLow    = detect.SensitivityLow
	SensitivityMedium = detect.SensitivityMedium
	SensitivityHigh   = detect.SensitivityHigh
)

// Bot is the configuration and health record of one detector family.
type Bot struct {
	ID              string          `json:"id" yaml:"id"`
	Name            string          `json:"name" yaml:"name"`
	Category        detect.Category `json:"category" yaml:"category"`
	Status          Status          `json:"status" yaml:"status"`
	Sensitivity     Sensitivity     `json:"sensitivity" yaml:"sensitivity"`
	ScansCompleted  int64           `json:"scans_completed" yaml:"scans_completed"`
	AlertsGenerated int64           `json:"alerts_generated" yaml:"alerts_generated"`
	LastActivity    *time.Time      `json:"last_activity,omitempty" yaml:"last_activity,omitempty"`
	CreatedAt       time.Time       `json:"created_at" yaml:"created_at"`
}

// Uptime is the time since provisioning.
func (b Bot) Uptime(now time.Time) time.Duration {
	if b.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(b.CreatedAt)
}

// IDFor is the stable bot id for a category.
func IDFor(c detect.Category) string { return "bot-" + string(c) }

var defaultNames = map[detect.Category]string{
	detect.CategoryAuthentication: "Authentication Guardian",
	detect.CategoryDataProtection: "Data Protection Sentinel",
	detect.CategoryBehavior:       "Behavior Analyst",
	detect.CategoryNetwork:        "Network Watchdog",
}

// Defaults returns one active bot per detector family.
func Defaults() []Bot {
	out := make([]Bot, 0, len(detect.Categories))
	for _, c := range detect.Categories {
		out = append(out, Bot{
			ID:          IDFor(c),
			Name:        defaultNames[c],
			Category:    c,
			Status:      StatusActive,
			Sensitivity: SensitivityMedium,
		})
	}
	return out
}
