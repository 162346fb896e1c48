package router

import "github.com/shopspring/decimal"

var bpsScale = decimal.NewFromInt(FeeCeiling)

// BpsOf returns floor(amount * bps / 10000) for non-negative integral amounts.
func BpsOf(amount decimal.Decimal, bps uint32) decimal.Decimal {
	q, _ := amount.Mul(decimal.NewFromInt(int64(bps))).QuoRem(bpsScale, 0)
	return q
}

func ComputeFees(amount decimal.Decimal, protocolBps, platformBps uint32) Fees {
	return Fees{
		ProtocolBps: protocolBps,
		PlatformBps: platformBps,
		Protocol:    BpsOf(amount, protocolBps),
		Platform:    BpsOf(amount, platformBps),
	}
}

// NetAmount is what remains for the bridge after fees. It fails unless fees
// are strictly below amount.
func NetAmount(amount decimal.Decimal, fees Fees) (decimal.Decimal, error) {
	if fees.Total().GreaterThanOrEqual(amount) {
		return decimal.Zero, ErrFeesExceedAmount
	}
	return amount.Sub(fees.Total()), nil
}
