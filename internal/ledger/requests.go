// Package ledger keeps the gateway's two books: transfer requests and
// uncollected platform fees. It holds state only; admission, custody and
// dispatch are the gateway's job.
package ledger

import (
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	ErrRequestNotFound  = errors.New("request not found")
	ErrAlreadyCompleted = errors.New("request already completed")
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrNoFeesToWithdraw = errors.New("no fees to withdraw")
	ErrNegativeAmount   = errors.New("negative amount")
)

// Request is one initiated transfer. Protocol is a snapshot of the route name
// at initiation; later route edits never touch it.
type Request struct {
	ID           common.Hash
	Initiator    common.Address
	Asset        common.Address
	Amount       decimal.Decimal
	DestChain    uint64
	Protocol     string
	ProtocolFee  decimal.Decimal
	PlatformFee  decimal.Decimal
	BridgeAmount decimal.Decimal
	Nonce        uint64
	CreatedAt    time.Time

	Completed      bool
	CompletedAt    time.Time
	AmountReceived decimal.Decimal
}

func (r Request) TotalFee() decimal.Decimal {
	return r.ProtocolFee.Add(r.PlatformFee)
}

type RequestLedger struct {
	mu          sync.RWMutex
	requests    map[common.Hash]*Request
	order       []common.Hash
	byInitiator map[common.Address][]common.Hash
	nonces      map[common.Address]uint64
}

func NewRequestLedger() *RequestLedger {
	return &RequestLedger{
		requests:    make(map[common.Hash]*Request),
		byInitiator: make(map[common.Address][]common.Hash),
		nonces:      make(map[common.Address]uint64),
	}
}

// NextNonce is the sequence number the initiator's next request will carry.
func (l *RequestLedger) NextNonce(initiator common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nonces[initiator]
}

func (l *RequestLedger) Exists(id common.Hash) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.requests[id]
	return ok
}

// Insert records a new pending request and advances the initiator's sequence.
func (l *RequestLedger) Insert(req Request) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.requests[req.ID]; ok {
		return ErrDuplicateRequest
	}

	req.Completed = false
	stored := req
	l.requests[req.ID] = &stored
	l.order = append(l.order, req.ID)
	l.byInitiator[req.Initiator] = append(l.byInitiator[req.Initiator], req.ID)
	if req.Nonce >= l.nonces[req.Initiator] {
		l.nonces[req.Initiator] = req.Nonce + 1
	}
	return nil
}

func (l *RequestLedger) Get(id common.Hash) (Request, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	req, ok := l.requests[id]
	if !ok {
		return Request{}, ErrRequestNotFound
	}
	return *req, nil
}

// MarkCompleted flips a pending request to completed. The existence check, the
// completed check, authorize and the write all happen under one lock, so two
// callers can never both pass.
func (l *RequestLedger) MarkCompleted(id common.Hash, amountReceived decimal.Decimal, at time.Time, authorize func(Request) error) (Request, error) {
	if amountReceived.IsNegative() {
		return Request{}, ErrNegativeAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	req, ok := l.requests[id]
	if !ok {
		return Request{}, ErrRequestNotFound
	}
	if req.Completed {
		return Request{}, ErrAlreadyCompleted
	}
	if authorize != nil {
		if err := authorize(*req); err != nil {
			return Request{}, err
		}
	}

	req.Completed = true
	req.CompletedAt = at
	req.AmountReceived = amountReceived
	return *req, nil
}

func (l *RequestLedger) ByInitiator(initiator common.Address) []Request {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := l.byInitiator[initiator]
	out := make([]Request, 0, len(ids))
	for _, id := range ids {
		out = append(out, *l.requests[id])
	}
	return out
}

// All returns requests in insertion order.
func (l *RequestLedger) All() []Request {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Request, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.requests[id])
	}
	return out
}

func (l *RequestLedger) PendingCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, req := range l.requests {
		if !req.Completed {
			n++
		}
	}
	return n
}
