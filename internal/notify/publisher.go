package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"sentraguard/internal/alerts"
)

const (
	notificationSubjectPrefix = "sentraguard.notifications."
	ShutdownSubject           = "sentraguard.shutdown"
	connectTimeout            = 10 * time.Second
)

// Publisher fans notifications out to live dashboards over NATS.
type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func Connect(url string, logger *slog.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("sentraguard"),
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats at %s: %w", url, err)
	}
	return &Publisher{conn: conn, logger: logger}, nil
}

func NewPublisher(conn *nats.Conn, logger *slog.Logger) *Publisher {
	return &Publisher{conn: conn, logger: logger}
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Drain()
	}
}

func SubjectFor(n *alerts.Notification) string {
	return notificationSubjectPrefix + string(n.Severity)
}

func (p *Publisher) PublishNotification(n *alerts.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	headers := nats.Header{}
	headers.Set("x-notification-id", n.ID.String())
	headers.Set("x-alert-id", n.AlertID.String())
	headers.Set("x-severity", string(n.Severity))
	return p.publish(&nats.Msg{Subject: SubjectFor(n), Data: data, Header: headers})
}

// PublishShutdown announces a shutdown state change.
func (p *Publisher) PublishShutdown(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal shutdown change: %w", err)
	}
	return p.publish(&nats.Msg{Subject: ShutdownSubject, Data: data})
}

func (p *Publisher) publish(msg *nats.Msg) error {
	if p.conn == nil || !p.conn.IsConnected() {
		return fmt.Errorf("nats connection not available")
	}
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	p.logger.Debug("published", "subject", msg.Subject)
	return nil
}
