package shutdown

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sentraguard/internal/detect"
)

const (
	DefaultAutoRestore = 15 * time.Minute
	restoreTimeout     = 10 * time.Second
)

type StatusStore interface {
	Active(ctx context.Context) (*Status, error)
	Insert(ctx context.Context, st *Status) error
	Resolve(ctx context.Context, id uuid.UUID, restoredBy string, at time.Time) (bool, error)
}

type EmergencyStore interface {
	CreateEmergency(ctx context.Context, e *EmergencyEvent) error
	ResolveForShutdown(ctx context.Context, shutdownID uuid.UUID, at time.Time) error
}

type Authorizer interface {
	IsAuthorized(ctx context.Context, actor string) (bool, error)
}

// Announcer receives every transition, e.g. for live dashboards.
type Announcer interface {
	PublishShutdown(payload interface{}) error
}

// Observer tracks the current state, e.g. as a metric.
type Observer interface {
	ShutdownState(state State)
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option { return func(m *Machine) { m.now = now } }

func WithAutoRestoreWindow(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.window = d
		}
	}
}

func WithAnnouncer(a Announcer) Option { return func(m *Machine) { m.announcer = a } }

func WithObserver(o Observer) Option { return func(m *Machine) { m.observer = o } }

// Machine owns the platform's operating state. All transitions are serialized
// by mu; the store's single-active index backs it across processes.
type Machine struct {
	mu          sync.Mutex
	statuses    StatusStore
	emergencies EmergencyStore
	auth        Authorizer
	logger      *slog.Logger
	window      time.Duration
	now         func() time.Time
	announcer   Announcer
	observer    Observer
	timers      map[uuid.UUID]*time.Timer
	closed      bool
}

func NewMachine(statuses StatusStore, emergencies EmergencyStore, auth Authorizer, logger *slog.Logger, opts ...Option) *Machine {
	m := &Machine{
		statuses:    statuses,
		emergencies: emergencies,
		auth:        auth,
		logger:      logger,
		window:      DefaultAutoRestore,
		now:         func() time.Time { return time.Now().UTC() },
		timers:      make(map[uuid.UUID]*time.Timer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the active status, or nil when operational.
func (m *Machine) Current(ctx context.Context) (*Status, error) {
	return m.statuses.Active(ctx)
}

// RequestShutdown enters a shutdown. When the transition succeeds but its
// emergency event cannot be stored, both the status and the error are
// returned.
func (m *Machine) RequestShutdown(ctx context.Context, req Request) (*Status, error) {
	if !req.Level.Valid() {
		return nil, fmt.Errorf("%w: unknown level %q", ErrInvalidRequest, req.Level)
	}
	now := m.now()
	var deadline *time.Time

	if req.Automatic {
		if !isBotSource(req.TriggeredBy) {
			return nil, fmt.Errorf("%w: %q is not a recognized bot", ErrForbidden, req.TriggeredBy)
		}
		if req.Level != LevelPartial {
			return nil, fmt.Errorf("%w: automatic requests may only enter a partial shutdown", ErrInvalidRequest)
		}
		at := now.Add(m.window)
		deadline = &at
	} else {
		if err := m.authorize(ctx, req.TriggeredBy); err != nil {
			return nil, err
		}
		if req.Level == LevelPartial {
			d := req.RestoreAfter
			if d <= 0 {
				d = m.window
			}
			at := now.Add(d)
			deadline = &at
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	active, err := m.statuses.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active shutdown: %w", err)
	}
	if active != nil {
		return nil, fmt.Errorf("%w: %s shutdown triggered by %s at %s",
			ErrConflict, active.Level, active.TriggeredBy, active.TriggeredAt.Format(time.RFC3339))
	}

	st := &Status{
		ID:            uuid.New(),
		IsShutdown:    true,
		Level:         req.Level,
		Reason:        req.Reason,
		TriggeredBy:   req.TriggeredBy,
		TriggeredAt:   now,
		AutoRestoreAt: deadline,
	}
	if err := m.statuses.Insert(ctx, st); err != nil {
		return nil, fmt.Errorf("insert shutdown status: %w", err)
	}

	threat := req.ThreatType
	if threat == "" {
		threat = ThreatManualShutdown
	}
	severity := req.Severity
	if severity == "" {
		severity = detect.SeverityEmergency
	}
	payload := map[string]interface{}{"reason": req.Reason, "level": string(req.Level)}
	for k, v := range req.Payload {
		payload[k] = v
	}
	shutdownID := st.ID
	ev := &EmergencyEvent{
		ID:            uuid.New(),
		ShutdownID:    &shutdownID,
		ThreatType:    threat,
		Severity:      severity,
		TriggerSource: req.TriggeredBy,
		AutoShutdown:  req.Automatic,
		Payload:       payload,
		CreatedAt:     now,
	}
	var recordErr error
	if err := m.emergencies.CreateEmergency(ctx, ev); err != nil {
		recordErr = fmt.Errorf("record emergency event: %w", err)
		m.logger.Error("record emergency event", "err", err, "shutdown_id", st.ID)
	}

	if deadline != nil {
		m.scheduleLocked(st.ID, deadline.Sub(now))
	}
	m.logger.Warn("shutdown entered",
		"shutdown_id", st.ID,
		"level", st.Level,
		"triggered_by", st.TriggeredBy,
		"automatic", req.Automatic,
		"auto_restore_at", deadline)
	m.notify("shutdown", st)
	return copyStatus(st), recordErr
}

// Restore returns the platform to operational. Restoring an operational
// platform is a no-op and returns (nil, nil).
func (m *Machine) Restore(ctx context.Context, restoredBy string) (*Status, error) {
	if err := m.authorize(ctx, restoredBy); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restoreLocked(ctx, uuid.Nil, restoredBy)
}

// Reconcile restores an active shutdown whose deadline has passed. It is the
// durable backstop for timers lost with a previous process.
func (m *Machine) Reconcile(ctx context.Context) (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	active, err := m.statuses.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active shutdown: %w", err)
	}
	if !active.Due(m.now()) {
		return nil, nil
	}
	return m.restoreLocked(ctx, active.ID, AutoRestoreActor)
}

// Recover runs at startup: past-due shutdowns are restored, pending deadlines
// get a fresh timer.
func (m *Machine) Recover(ctx context.Context) error {
	restored, err := m.Reconcile(ctx)
	if err != nil {
		return err
	}
	if restored != nil {
		m.logger.Info("restored overdue shutdown on startup", "shutdown_id", restored.ID)
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	active, err := m.statuses.Active(ctx)
	if err != nil {
		return fmt.Errorf("load active shutdown: %w", err)
	}
	if active != nil && active.AutoRestoreAt != nil {
		m.scheduleLocked(active.ID, active.AutoRestoreAt.Sub(m.now()))
		m.logger.Info("re-armed auto restore", "shutdown_id", active.ID, "auto_restore_at", *active.AutoRestoreAt)
	}
	if m.observer != nil {
		m.observer.ShutdownState(active.State())
	}
	return nil
}

// Pending reports whether an auto-restore timer is armed for id.
func (m *Machine) Pending(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.timers[id]
	return ok
}

// Close stops all timers. Deadlines stay persisted for the next Recover.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}

// restoreLocked ends the active shutdown. A non-nil expected id restricts the
// restore to that shutdown so a stale timer cannot end a newer one.
func (m *Machine) restoreLocked(ctx context.Context, expected uuid.UUID, restoredBy string) (*Status, error) {
	active, err := m.statuses.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active shutdown: %w", err)
	}
	if active == nil || (expected != uuid.Nil && active.ID != expected) {
		m.cancelLocked(expected)
		return nil, nil
	}
	now := m.now()
	changed, err := m.statuses.Resolve(ctx, active.ID, restoredBy, now)
	if err != nil {
		return nil, fmt.Errorf("resolve shutdown: %w", err)
	}
	m.cancelLocked(active.ID)
	if !changed {
		return nil, nil
	}
	if err := m.emergencies.ResolveForShutdown(ctx, active.ID, now); err != nil {
		m.logger.Error("resolve emergency events", "err", err, "shutdown_id", active.ID)
	}
	active.IsShutdown = false
	active.RestoredBy = restoredBy
	active.ResolvedAt = &now
	m.logger.Info("shutdown restored", "shutdown_id", active.ID, "restored_by", restoredBy, "level", active.Level)
	m.notify("restore", active)
	return active, nil
}

func (m *Machine) scheduleLocked(id uuid.UUID, d time.Duration) {
	if m.closed {
		return
	}
	m.cancelLocked(id)
	if d < 0 {
		d = 0
	}
	m.timers[id] = time.AfterFunc(d, func() { m.fire(id) })
}

func (m *Machine) cancelLocked(id uuid.UUID) {
	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}
}

func (m *Machine) fire(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.timers[id]; !ok {
		return
	}
	delete(m.timers, id)
	if _, err := m.restoreLocked(ctx, id, AutoRestoreActor); err != nil {
		// Reconcile picks it up on the next cycle.
		m.logger.Error("auto restore", "err", err, "shutdown_id", id)
	}
}

func (m *Machine) authorize(ctx context.Context, actor string) error {
	ok, err := m.auth.IsAuthorized(ctx, actor)
	if err != nil {
		return fmt.Errorf("authorize %q: %w", actor, err)
	}
	if !ok {
		m.logger.Warn("unauthorized shutdown control attempt", "actor", actor)
		return fmt.Errorf("%w: %q", ErrForbidden, actor)
	}
	return nil
}

func (m *Machine) notify(action string, st *Status) {
	if m.observer != nil {
		m.observer.ShutdownState(st.State())
	}
	if m.announcer == nil {
		return
	}
	if err := m.announcer.PublishShutdown(Change{Action: action, State: st.State(), Status: copyStatus(st)}); err != nil {
		m.logger.Warn("announce shutdown change", "err", err, "action", action)
	}
}

func isBotSource(src string) bool {
	if !strings.HasPrefix(src, botSourcePrefix) {
		return false
	}
	return detect.Category(strings.TrimPrefix(src, botSourcePrefix)).Valid()
}

func copyStatus(st *Status) *Status {
	if st == nil {
		return nil
	}
	c := *st
	return &c
}
