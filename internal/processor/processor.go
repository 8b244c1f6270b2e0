package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sentraguard/internal/alerts"
	"sentraguard/internal/bots"
	"sentraguard/internal/detect"
	"sentraguard/internal/metrics"
	"sentraguard/internal/response"
)

const (
	OpAlert        = "alert"
	OpNotification = "notification"
	OpAutoResponse = "auto_response"
	OpBotCounter   = "bot_counter"
	OpResolveBot   = "resolve_bot"
)

type AlertStore interface {
	Create(ctx context.Context, a *alerts.Alert) error
	MarkAutoResponse(ctx context.Context, id uuid.UUID) error
	CreateNotification(ctx context.Context, n *alerts.Notification) error
}

type Responder interface {
	ExecuteAutoResponse(ctx context.Context, ind detect.Indicator) (*response.Outcome, error)
}

type BotCounter interface {
	IncrementAlerts(ctx context.Context, id string, n int, at time.Time) error
}

// Publisher pushes notifications to live displays. Optional.
type Publisher interface {
	PublishNotification(n *alerts.Notification) error
}

// PersistenceError is a failed write for one indicator. It never aborts the
// rest of the cycle.
type PersistenceError struct {
	Op     string
	Threat detect.ThreatType
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s for %s: %v", e.Op, e.Threat, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type Result struct {
	Indicators    int            `json:"indicators"`
	Stored        int            `json:"stored"`
	AutoResponses int            `json:"auto_responses"`
	Failures      int            `json:"failures"`
	Errors        []error        `json:"-"`
	Alerts        []alerts.Alert `json:"alerts"`
}

type Option func(*Processor)

func WithPublisher(p Publisher) Option { return func(pr *Processor) { pr.publisher = p } }

func WithMetrics(m *metrics.Metrics) Option { return func(pr *Processor) { pr.metrics = m } }

func WithWorkers(n int) Option {
	return func(pr *Processor) {
		if n > 0 {
			pr.workers = n
		}
	}
}

func WithClock(now func() time.Time) Option { return func(pr *Processor) { pr.now = now } }

// Processor turns indicators into alerts and triggers automatic responses.
type Processor struct {
	alerts    AlertStore
	responder Responder
	bots      BotCounter
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	workers   int
	now       func() time.Time
}

func New(alertStore AlertStore, responder Responder, botCounter BotCounter, logger *slog.Logger, opts ...Option) *Processor {
	p := &Processor{
		alerts:    alertStore,
		responder: responder,
		bots:      botCounter,
		logger:    logger,
		workers:   4,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type outcome struct {
	alert    *alerts.Alert
	stored   bool
	response bool
	errs     []error
}

// Process handles every indicator of one cycle. Writes run on a bounded pool;
// failures are collected into the result.
func (p *Processor) Process(ctx context.Context, cycleID uuid.UUID, inds []detect.Indicator) Result {
	res := Result{Indicators: len(inds)}
	// One slot per indicator; each goroutine writes only its own.
	outcomes := make([]outcome, len(inds))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := range inds {
		i := i
		g.Go(func() error {
			outcomes[i] = p.processOne(ctx, cycleID, inds[i])
			return nil
		})
	}
	_ = g.Wait()

	perBot := make(map[string]int)
	for _, o := range outcomes {
		res.Errors = append(res.Errors, o.errs...)
		if o.response {
			res.AutoResponses++
		}
		if o.stored {
			res.Stored++
			res.Alerts = append(res.Alerts, *o.alert)
			perBot[o.alert.BotID]++
		}
	}

	botIDs := make([]string, 0, len(perBot))
	for id := range perBot {
		botIDs = append(botIDs, id)
	}
	sort.Strings(botIDs)
	for _, id := range botIDs {
		if err := p.bots.IncrementAlerts(ctx, id, perBot[id], p.now()); err != nil {
			p.logger.Error("increment bot alert counter", "err", err, "bot", id)
			p.metrics.PersistenceFailed(OpBotCounter)
			res.Errors = append(res.Errors, &PersistenceError{Op: OpBotCounter, Err: err})
		}
	}
	res.Failures = len(res.Errors)
	return res
}

func (p *Processor) processOne(ctx context.Context, cycleID uuid.UUID, ind detect.Indicator) outcome {
	var o outcome
	p.metrics.IndicatorRaised(string(ind.Type), string(ind.Severity))

	category, ok := ind.Type.Category()
	if !ok {
		err := &PersistenceError{Op: OpResolveBot, Threat: ind.Type, Err: fmt.Errorf("unknown threat type")}
		p.logger.Error("resolve owning bot", "err", err)
		o.errs = append(o.errs, err)
		return o
	}

	a := &alerts.Alert{
		ID:                  uuid.New(),
		BotID:               bots.IDFor(category),
		CycleID:             cycleID,
		ThreatType:          ind.Type,
		Severity:            ind.Severity,
		Title:               Title(ind),
		Description:         Describe(ind),
		ConfidenceScore:     ind.Confidence,
		Details:             ind.Details,
		RequiresHumanReview: ind.Severity.RequiresHumanReview(),
		CreatedAt:           p.now(),
	}
	o.alert = a
	if err := p.alerts.Create(ctx, a); err != nil {
		p.logger.Error("create alert", "err", err, "threat", ind.Type, "severity", ind.Severity)
		p.metrics.PersistenceFailed(OpAlert)
		o.errs = append(o.errs, &PersistenceError{Op: OpAlert, Threat: ind.Type, Err: err})
	} else {
		o.stored = true
		p.metrics.AlertStored()
	}

	if ind.Severity == detect.SeverityEmergency {
		p.respond(ctx, ind, &o)
	}

	if !o.stored {
		return o
	}
	n := &alerts.Notification{
		ID:        uuid.New(),
		AlertID:   a.ID,
		Severity:  a.Severity,
		Title:     a.Title,
		Message:   a.Description,
		CreatedAt: a.CreatedAt,
	}
	if err := p.alerts.CreateNotification(ctx, n); err != nil {
		p.logger.Error("create notification", "err", err, "alert_id", a.ID)
		p.metrics.PersistenceFailed(OpNotification)
		o.errs = append(o.errs, &PersistenceError{Op: OpNotification, Threat: ind.Type, Err: err})
	}
	if p.publisher != nil {
		if err := p.publisher.PublishNotification(n); err != nil {
			p.logger.Warn("publish notification", "err", err, "alert_id", a.ID)
		}
	}
	return o
}

func (p *Processor) respond(ctx context.Context, ind detect.Indicator, o *outcome) {
	out, err := p.responder.ExecuteAutoResponse(ctx, ind)
	if err != nil {
		p.logger.Error("execute auto response", "err", err, "threat", ind.Type)
		p.metrics.PersistenceFailed(OpAutoResponse)
		o.errs = append(o.errs, &PersistenceError{Op: OpAutoResponse, Threat: ind.Type, Err: err})
	}
	if out == nil || (out.Shutdown == nil && !out.Noop) {
		p.metrics.AutoResponse("failed")
		return
	}
	o.response = true
	if out.Noop {
		p.metrics.AutoResponse("noop")
	} else {
		p.metrics.AutoResponse("shutdown")
	}
	if !o.stored {
		return
	}
	if err := p.alerts.MarkAutoResponse(ctx, o.alert.ID); err != nil {
		p.logger.Error("mark auto response", "err", err, "alert_id", o.alert.ID)
		p.metrics.PersistenceFailed(OpAlert)
		o.errs = append(o.errs, &PersistenceError{Op: OpAlert, Threat: ind.Type, Err: err})
		return
	}
	o.alert.AutoResponseTaken = true
}

var titles = map[detect.ThreatType]string{
	detect.ThreatAuthenticationAttack: "Authentication attack detected",
	detect.ThreatPrivilegeEscalation:  "Privilege change detected",
	detect.ThreatDataExfiltration:     "Possible data exfiltration",
	detect.ThreatBulkManipulation:     "Bulk change on sensitive data",
	detect.ThreatOffHoursAccess:       "Login outside business hours",
	detect.ThreatUnusualVolume:        "Unusual activity volume",
	detect.ThreatRateLimitAbuse:       "Rate limit abuse",
	detect.ThreatBotActivity:          "Automated client activity",
	detect.ThreatGeoAnomaly:           "Geographic anomaly",
}

func Title(ind detect.Indicator) string {
	if t, ok := titles[ind.Type]; ok {
		return t
	}
	return string(ind.Type)
}

// Describe renders the key evidence of an indicator for humans.
func Describe(ind detect.Indicator) string {
	d := ind.Details
	var summary string
	switch ind.Type {
	case detect.ThreatAuthenticationAttack:
		summary = fmt.Sprintf("%v failed logins from %d actor(s)", d["failed_attempts"], count(d["actors"]))
	case detect.ThreatPrivilegeEscalation:
		summary = fmt.Sprintf("%v role change(s) affecting %d account(s)", d["role_changes"], count(d["targets"]))
	case detect.ThreatDataExfiltration:
		summary = fmt.Sprintf("%v reads across %d sensitive table(s)", d["reads"], count(d["tables"]))
	case detect.ThreatBulkManipulation:
		summary = fmt.Sprintf("%v bulk operation(s) on %d sensitive table(s)", d["operations"], count(d["tables"]))
	case detect.ThreatOffHoursAccess:
		summary = fmt.Sprintf("%v login(s) outside %v", d["off_hours_logins"], d["business_hours"])
	case detect.ThreatUnusualVolume:
		summary = fmt.Sprintf("actor %v performed %v actions", d["actor"], d["actions"])
	case detect.ThreatRateLimitAbuse:
		summary = fmt.Sprintf("%v rate limited requests from %d address(es)", d["rate_limited_requests"], count(d["ip_addresses"]))
		if ddos, _ := d["suspected_ddos"].(bool); ddos {
			summary += ", suspected denial of service"
		}
	case detect.ThreatBotActivity:
		summary = fmt.Sprintf("%v request(s) flagged as automated", d["flagged_requests"])
	case detect.ThreatGeoAnomaly:
		summary = fmt.Sprintf("%v geo anomaly event(s) from %d actor(s)", d["anomalies"], count(d["actors"]))
	default:
		summary = "indicator raised"
	}
	return fmt.Sprintf("%s (severity %s, confidence %d%%)", summary, ind.Severity, ind.Confidence)
}

func count(v interface{}) int {
	switch s := v.(type) {
	case []string:
		return len(s)
	case []interface{}:
		return len(s)
	}
	return 0
}
