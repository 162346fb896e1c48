package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lucendex/crossroute/internal/ledger"
)

const DefaultTimeout = 10 * time.Second

// HTTPAdapter POSTs each order as JSON to an executor endpoint. A 2xx with
// {"accepted": true} counts as accepted; anything else fails the dispatch.
type HTTPAdapter struct {
	identity common.Address
	endpoint string
	client   *http.Client
	logger   logrus.FieldLogger
}

func NewHTTPAdapter(identity common.Address, endpoint string, timeout time.Duration, logger logrus.FieldLogger) *HTTPAdapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPAdapter{
		identity: identity,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

func (a *HTTPAdapter) Identity() common.Address {
	return a.identity
}

func (a *HTTPAdapter) Dispatch(ctx context.Context, order ledger.DispatchOrder) error {
	body, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("X-Adapter-Identity", a.identity.Hex())

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("executor unreachable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("failed to read executor response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, bytes.TrimSpace(data))
	}

	var ack Ack
	if err := json.Unmarshal(data, &ack); err != nil {
		return fmt.Errorf("malformed executor ack: %w", err)
	}
	if !ack.Accepted {
		return fmt.Errorf("%w: %s", ErrRejected, ack.Reason)
	}

	if a.logger != nil {
		a.logger.WithFields(logrus.Fields{
			"request_id": order.RequestID.Hex(),
			"endpoint":   a.endpoint,
		}).Debug("order accepted by executor")
	}
	return nil
}
