package router

const (
	FeeCeiling  = 10000
	TimeCeiling = 86400
)

// Score ranks a route under a preference; higher is better. Inputs above the
// ceilings are clamped so a slow or expensive route bottoms out at zero
// instead of wrapping around.
func Score(route Route, pref Preference) int64 {
	fee := int64(route.FeeBps)
	if fee > FeeCeiling {
		fee = FeeCeiling
	}
	latency := clampLatency(route.Latency)

	switch pref {
	case PreferCheapest:
		return FeeCeiling - fee
	case PreferFastest:
		return TimeCeiling - latency
	default:
		return (FeeCeiling-fee)/2 + (TimeCeiling-latency)/2
	}
}

func clampLatency(latency uint64) int64 {
	if latency > TimeCeiling {
		return TimeCeiling
	}
	return int64(latency)
}
