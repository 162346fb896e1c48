package ledger

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// FeeLedger accumulates platform fees per asset until the operator withdraws them.
type FeeLedger struct {
	mu       sync.RWMutex
	balances map[common.Address]decimal.Decimal
}

func NewFeeLedger() *FeeLedger {
	return &FeeLedger{
		balances: make(map[common.Address]decimal.Decimal),
	}
}

func (f *FeeLedger) Collect(asset common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	if amount.IsZero() {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[asset] = f.balances[asset].Add(amount)
	return nil
}

func (f *FeeLedger) Balance(asset common.Address) decimal.Decimal {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.balances[asset]
}

// Drain zeroes the asset's balance and returns what it held.
func (f *FeeLedger) Drain(asset common.Address) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	balance := f.balances[asset]
	if !balance.IsPositive() {
		return decimal.Zero, ErrNoFeesToWithdraw
	}
	f.balances[asset] = decimal.Zero
	return balance, nil
}

// Restore puts back a drained balance whose transfer out did not happen.
func (f *FeeLedger) Restore(asset common.Address, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[asset] = f.balances[asset].Add(amount)
}

func (f *FeeLedger) Balances() map[common.Address]decimal.Decimal {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[common.Address]decimal.Decimal, len(f.balances))
	for asset, balance := range f.balances {
		if balance.IsPositive() {
			out[asset] = balance
		}
	}
	return out
}
