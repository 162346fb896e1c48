package router

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var MaxAmount = decimal.New(1, 36)

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) ValidateQuoteRequest(req *QuoteRequest) error {
	if err := v.ValidateAmount(req.Amount); err != nil {
		return err
	}

	if err := v.ValidateAsset(req.Asset); err != nil {
		return err
	}

	if req.DestChain == 0 {
		return ErrInvalidChain
	}

	return nil
}

// ValidateAmount accepts positive integral base-unit amounts up to MaxAmount.
func (v *Validator) ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	if !amount.IsInteger() {
		return ErrInvalidAmount
	}

	if amount.GreaterThan(MaxAmount) {
		return ErrAmountTooLarge
	}

	return nil
}

func (v *Validator) ValidateAsset(asset common.Address) error {
	if asset == (common.Address{}) {
		return ErrInvalidAsset
	}
	return nil
}

// IsValidAddress accepts 0x-prefixed 20-byte hex.
func (v *Validator) IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}
