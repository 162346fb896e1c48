// Package custody implements the asset custody contract the gateway settles
// through: an in-memory Vault for single-process deployments and tests, and an
// ERC-20 client that turns each movement into token calldata.
package custody

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientCustody   = errors.New("insufficient custody balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrZeroAddress           = errors.New("zero address")
)

// Vault tracks token balances per account plus the allowances custody has
// granted. Every call either applies fully or not at all.
type Vault struct {
	mu         sync.Mutex
	custodian  common.Address
	balances   map[common.Address]map[common.Address]decimal.Decimal
	allowances map[common.Address]map[common.Address]decimal.Decimal
}

func NewVault(custodian common.Address) *Vault {
	return &Vault{
		custodian:  custodian,
		balances:   make(map[common.Address]map[common.Address]decimal.Decimal),
		allowances: make(map[common.Address]map[common.Address]decimal.Decimal),
	}
}

func (v *Vault) Custodian() common.Address {
	return v.custodian
}

// Mint credits account out of thin air. Used to fund accounts in dev setups.
func (v *Vault) Mint(asset, account common.Address, amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.credit(asset, account, amount)
	return nil
}

func (v *Vault) BalanceOf(asset, account common.Address) decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[asset][account]
}

// Held is what custody itself owns of asset.
func (v *Vault) Held(asset common.Address) decimal.Decimal {
	return v.BalanceOf(asset, v.custodian)
}

func (v *Vault) Allowance(asset, spender common.Address) decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.allowances[asset][spender]
}

func (v *Vault) Pull(ctx context.Context, asset, account common.Address, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.balances[asset][account].LessThan(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, account.Hex(), v.balances[asset][account], amount)
	}
	v.debit(asset, account, amount)
	v.credit(asset, v.custodian, amount)
	return nil
}

func (v *Vault) Approve(ctx context.Context, asset, spender common.Address, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if spender == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount.IsNegative() || !amount.Equal(amount.Truncate(0)) {
		return ErrInvalidAmount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.allowances[asset] == nil {
		v.allowances[asset] = make(map[common.Address]decimal.Decimal)
	}
	if amount.IsZero() {
		delete(v.allowances[asset], spender)
		return nil
	}
	v.allowances[asset][spender] = amount
	return nil
}

func (v *Vault) Push(ctx context.Context, asset, account common.Address, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if account == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := checkAmount(amount); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.balances[asset][v.custodian].LessThan(amount) {
		return fmt.Errorf("%w: holds %s, needs %s", ErrInsufficientCustody, v.balances[asset][v.custodian], amount)
	}
	v.debit(asset, v.custodian, amount)
	v.credit(asset, account, amount)
	return nil
}

// TransferFrom lets an approved spender draw from custody, the way a bridge
// adapter collects the amount it was approved for.
func (v *Vault) TransferFrom(ctx context.Context, asset, spender, to common.Address, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	allowed := v.allowances[asset][spender]
	if allowed.LessThan(amount) {
		return fmt.Errorf("%w: %s approved for %s, needs %s", ErrInsufficientAllowance, spender.Hex(), allowed, amount)
	}
	if v.balances[asset][v.custodian].LessThan(amount) {
		return ErrInsufficientCustody
	}
	v.allowances[asset][spender] = allowed.Sub(amount)
	v.debit(asset, v.custodian, amount)
	v.credit(asset, to, amount)
	return nil
}

func (v *Vault) credit(asset, account common.Address, amount decimal.Decimal) {
	if v.balances[asset] == nil {
		v.balances[asset] = make(map[common.Address]decimal.Decimal)
	}
	v.balances[asset][account] = v.balances[asset][account].Add(amount)
}

func (v *Vault) debit(asset, account common.Address, amount decimal.Decimal) {
	v.balances[asset][account] = v.balances[asset][account].Sub(amount)
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Truncate(0)) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return nil
}
