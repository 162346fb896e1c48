package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const DefaultSubjectPrefix = "crossroute.events"

// Publisher is the subset of *nats.Conn the feed needs.
type Publisher interface {
	Publish(subj string, data []byte) error
}

type NATSPublisher struct {
	conn   Publisher
	prefix string
}

func NewNATSPublisher(conn Publisher, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

func (p *NATSPublisher) Subject(kind Kind) string {
	return p.prefix + "." + string(kind)
}

func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(ev.Kind), data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Kind, err)
	}
	return nil
}

// Connect dials NATS with unlimited reconnects and keeps the connection gauge current.
func Connect(url string, timeout time.Duration, logger logrus.FieldLogger) (*nats.Conn, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	conn, err := nats.Connect(url,
		nats.Name("crossroute"),
		nats.Timeout(timeout),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithField("error", err).Warn("nats disconnected")
			NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
			NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	NATSConnectionStatus.Set(1)
	return conn, nil
}

// Subscribe delivers every feed event under prefix to handler. Undecodable
// messages are logged and skipped.
func Subscribe(conn *nats.Conn, prefix string, logger logrus.FieldLogger, handler func(Event)) (*nats.Subscription, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	sub, err := conn.Subscribe(prefix+".>", func(msg *nats.Msg) {
		ev, err := Decode(msg.Data)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"subject": msg.Subject,
				"error":   err.Error(),
			}).Warn("dropping undecodable event")
			return
		}
		handler(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", prefix, err)
	}
	return sub, nil
}

func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.Kind == "" {
		return Event{}, fmt.Errorf("event has no kind")
	}
	return ev, nil
}
