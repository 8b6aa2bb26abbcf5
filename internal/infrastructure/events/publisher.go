// Package events publishes committed audit log entries to NATS.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"reliability/internal/bootstrap/logging"
	"reliability/internal/errs"
	"reliability/internal/ports"
)

const LogAppendedSubject = "log.appended"

type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

var _ ports.EventPublisher = (*NATSPublisher)(nil)

// Connect dials url and publishes on "<prefix>.log.appended".
func Connect(ctx context.Context, url string, prefix string) (*NATSPublisher, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "events.nats"))
	conn, err := nats.Connect(url,
		nats.Name("reliability"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn(logCtx, "nats disconnected", slog.Any("err", errs.Loggable(err)))
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logging.Info(logCtx, "nats reconnected", slog.String("url", conn.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, errs.Wrapf(err, "connect nats %q", url)
	}

	logging.Info(logCtx, "nats connected", slog.String("url", url))
	return NewNATSPublisher(conn, prefix), nil
}

func NewNATSPublisher(conn *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: Subject(prefix)}
}

func Subject(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return LogAppendedSubject
	}
	return prefix + "." + LogAppendedSubject
}

func (p *NATSPublisher) PublishLogAppended(ctx context.Context, event ports.LogAppendedEvent) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errs.Wrap(err, "marshal log appended event")
	}
	msg := nats.NewMsg(p.subject)
	msg.Data = payload
	msg.Header.Set(nats.MsgIdHdr, event.LogID)
	if err := p.conn.PublishMsg(msg); err != nil {
		return errs.Wrapf(err, "publish %s", p.subject)
	}
	return nil
}

// Close drains pending messages before closing the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	return p.conn.Drain()
}

// Noop drops every event.
type Noop struct{}

var _ ports.EventPublisher = Noop{}

func (Noop) PublishLogAppended(context.Context, ports.LogAppendedEvent) error { return nil }
