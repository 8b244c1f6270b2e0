package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"sentraguard/internal/alerts"
	"sentraguard/internal/bots"
	"sentraguard/internal/detect"
	"sentraguard/internal/scan"
	"sentraguard/internal/shutdown"
)

func sampleStatus(now time.Time) *scan.Status {
	restoreAt := now.Add(10 * time.Minute)
	last := now.Add(-2 * time.Minute)
	b := bots.Defaults()
	b[0].ScansCompleted = 1200
	b[0].AlertsGenerated = 3
	b[0].LastActivity = &last
	b[0].CreatedAt = now.Add(-48 * time.Hour)
	return &scan.Status{
		State: shutdown.StatePartialShutdown,
		Shutdown: &shutdown.Status{
			ID:            uuid.New(),
			IsShutdown:    true,
			Level:         shutdown.LevelPartial,
			Reason:        "automatic response to authentication_attack (confidence 95)",
			TriggeredBy:   "bot:authentication",
			TriggeredAt:   now.Add(-5 * time.Minute),
			AutoRestoreAt: &restoreAt,
		},
		Bots: b,
		RecentAlerts: []alerts.Alert{{
			ID:                  uuid.New(),
			ThreatType:          detect.ThreatAuthenticationAttack,
			Severity:            detect.SeverityEmergency,
			ConfidenceScore:     95,
			RequiresHumanReview: true,
			AutoResponseTaken:   true,
			CreatedAt:           now.Add(-5 * time.Minute),
		}},
		GeneratedAt: now,
	}
}

func TestPrintStatus(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printStatus(&buf, sampleStatus(now), now)
	out := buf.String()

	assert.Contains(t, out, "State: partial_shutdown")
	assert.Contains(t, out, "bot:authentication (5 minutes ago)")
	assert.Contains(t, out, "Auto restore : 10 minutes from now")
	assert.Contains(t, out, "Authentication Guardian")
	assert.Contains(t, out, "1,200")
	assert.Contains(t, out, "2 minutes ago")
	assert.Contains(t, out, "never")
	assert.Contains(t, out, "Alerts (last hour): 1")
	assert.Contains(t, out, "authentication_attack")
}

func TestEncodeFormats(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	st := sampleStatus(now)

	var buf bytes.Buffer
	require.NoError(t, encode(&buf, "json", st))
	assert.Contains(t, buf.String(), `"state": "partial_shutdown"`)

	buf.Reset()
	require.NoError(t, encode(&buf, "yaml", st))
	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "partial_shutdown", decoded["state"])

	assert.Error(t, encode(&buf, "xml", st))
}

func TestPrintReport(t *testing.T) {
	restored := uuid.New()
	rep := scan.Report{
		CycleID:          uuid.New(),
		BotsScanned:      4,
		Indicators:       1500,
		Stored:           1499,
		DetectorFailures: 1,
		Restored:         &restored,
		Errors:           []error{errors.New("detector behavior-analyst: context deadline exceeded")},
	}
	var buf bytes.Buffer
	printReport(&buf, rep)
	out := buf.String()
	assert.Contains(t, out, "1,500")
	assert.Contains(t, out, restored.String())
	assert.True(t, strings.Contains(out, "- detector behavior-analyst"))
}
