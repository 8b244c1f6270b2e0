package response

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sentraguard/internal/detect"
	"sentraguard/internal/shutdown"
)

type EmergencyRecorder interface {
	CreateEmergency(ctx context.Context, e *shutdown.EmergencyEvent) error
}

type ShutdownRequester interface {
	RequestShutdown(ctx context.Context, req shutdown.Request) (*shutdown.Status, error)
}

// Outcome describes what an automatic response did.
type Outcome struct {
	Event    *shutdown.EmergencyEvent
	Shutdown *shutdown.Status
	// Noop is set when a shutdown was already active.
	Noop bool
}

// Controller runs countermeasures for emergency indicators. It holds the
// state machine directly; there is no ambient trigger hook.
type Controller struct {
	recorder EmergencyRecorder
	machine  ShutdownRequester
	logger   *slog.Logger
	now      func() time.Time
}

func NewController(recorder EmergencyRecorder, machine ShutdownRequester, logger *slog.Logger) *Controller {
	return &Controller{
		recorder: recorder,
		machine:  machine,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ExecuteAutoResponse records the attempt, then asks for a partial shutdown.
// An already active shutdown is a no-op, not an error. A failed audit insert
// is returned alongside the outcome.
func (c *Controller) ExecuteAutoResponse(ctx context.Context, ind detect.Indicator) (*Outcome, error) {
	category, ok := ind.Type.Category()
	if !ok {
		return nil, fmt.Errorf("no detector category for threat %q", ind.Type)
	}
	source := shutdown.BotSource(category)

	payload := map[string]interface{}{
		"confidence": ind.Confidence,
		"details":    ind.Details,
	}
	ev := &shutdown.EmergencyEvent{
		ID:            uuid.New(),
		ThreatType:    ind.Type,
		Severity:      ind.Severity,
		TriggerSource: source,
		AutoShutdown:  false,
		Payload:       payload,
		CreatedAt:     c.now(),
	}
	var recordErr error
	if err := c.recorder.CreateEmergency(ctx, ev); err != nil {
		// The shutdown still goes ahead; the caller counts the lost record.
		recordErr = fmt.Errorf("record emergency event: %w", err)
		c.logger.Error("record emergency event", "err", err, "threat", ind.Type)
	}

	st, err := c.machine.RequestShutdown(ctx, shutdown.Request{
		Level:       shutdown.LevelPartial,
		Reason:      fmt.Sprintf("automatic response to %s (confidence %d)", ind.Type, ind.Confidence),
		TriggeredBy: source,
		Automatic:   true,
		ThreatType:  ind.Type,
		Severity:    ind.Severity,
		Payload:     payload,
	})
	if errors.Is(err, shutdown.ErrConflict) {
		c.logger.Info("shutdown already active, auto response is a no-op",
			"threat", ind.Type, "source", source, "emergency_event", ev.ID)
		return &Outcome{Event: ev, Noop: true}, recordErr
	}
	if err != nil && st == nil {
		return &Outcome{Event: ev}, errors.Join(recordErr, fmt.Errorf("request partial shutdown: %w", err))
	}
	recordErr = errors.Join(recordErr, err)
	c.logger.Warn("auto response entered partial shutdown",
		"threat", ind.Type, "source", source, "shutdown_id", st.ID, "auto_restore_at", st.AutoRestoreAt)
	return &Outcome{Event: ev, Shutdown: st}, recordErr
}
