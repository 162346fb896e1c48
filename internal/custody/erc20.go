package custody

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const erc20ABI = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// Submitter sends a call to a token contract and waits until it is final. A
// reverted call must come back as an error.
type Submitter interface {
	Submit(ctx context.Context, to common.Address, data []byte) error
}

type ERC20Custody struct {
	custodian common.Address
	submitter Submitter
	abi       abi.ABI
}

func NewERC20Custody(custodian common.Address, submitter Submitter) (*ERC20Custody, error) {
	if custodian == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 abi: %w", err)
	}
	return &ERC20Custody{
		custodian: custodian,
		submitter: submitter,
		abi:       parsed,
	}, nil
}

func (c *ERC20Custody) Pull(ctx context.Context, asset, account common.Address, amount decimal.Decimal) error {
	value, err := toUint256(amount, false)
	if err != nil {
		return err
	}
	return c.call(ctx, asset, "transferFrom", account, c.custodian, value)
}

func (c *ERC20Custody) Approve(ctx context.Context, asset, spender common.Address, amount decimal.Decimal) error {
	if spender == (common.Address{}) {
		return ErrZeroAddress
	}
	value, err := toUint256(amount, true)
	if err != nil {
		return err
	}
	return c.call(ctx, asset, "approve", spender, value)
}

func (c *ERC20Custody) Push(ctx context.Context, asset, account common.Address, amount decimal.Decimal) error {
	if account == (common.Address{}) {
		return ErrZeroAddress
	}
	value, err := toUint256(amount, false)
	if err != nil {
		return err
	}
	return c.call(ctx, asset, "transfer", account, value)
}

func (c *ERC20Custody) call(ctx context.Context, asset common.Address, method string, args ...interface{}) error {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}
	if err := c.submitter.Submit(ctx, asset, data); err != nil {
		return fmt.Errorf("%s on %s failed: %w", method, asset.Hex(), err)
	}
	return nil
}

func toUint256(amount decimal.Decimal, allowZero bool) (*big.Int, error) {
	if amount.IsNegative() || (!allowZero && amount.IsZero()) || !amount.Equal(amount.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	value := amount.BigInt()
	if value.BitLen() > 256 {
		return nil, fmt.Errorf("%w: %s overflows uint256", ErrInvalidAmount, amount)
	}
	return value, nil
}
