package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/lucendex/crossroute/internal/ledger"
)

// Requester is the request/reply half of *nats.Conn.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// NATSAdapter sends each order on a subject and waits for the executor's Ack.
type NATSAdapter struct {
	identity common.Address
	conn     Requester
	subject  string
	timeout  time.Duration
	logger   logrus.FieldLogger
}

func NewNATSAdapter(identity common.Address, conn Requester, subject string, timeout time.Duration, logger logrus.FieldLogger) *NATSAdapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &NATSAdapter{
		identity: identity,
		conn:     conn,
		subject:  subject,
		timeout:  timeout,
		logger:   logger,
	}
}

func (a *NATSAdapter) Identity() common.Address {
	return a.identity
}

func (a *NATSAdapter) Dispatch(ctx context.Context, order ledger.DispatchOrder) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode order: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	msg, err := a.conn.RequestWithContext(ctx, a.subject, data)
	if err != nil {
		return fmt.Errorf("no reply on %s: %w", a.subject, err)
	}

	var ack Ack
	if err := json.Unmarshal(msg.Data, &ack); err != nil {
		return fmt.Errorf("malformed executor ack: %w", err)
	}
	if !ack.Accepted {
		return fmt.Errorf("%w: %s", ErrRejected, ack.Reason)
	}

	if a.logger != nil {
		a.logger.WithFields(logrus.Fields{
			"request_id": order.RequestID.Hex(),
			"subject":    a.subject,
		}).Debug("order accepted by executor")
	}
	return nil
}
