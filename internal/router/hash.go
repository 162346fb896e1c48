package router

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

type quoteHashInput struct {
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	DestChain   uint64 `json:"dest_chain"`
	Preference  string `json:"preference"`
	Protocol    string `json:"protocol"`
	ProtocolBps uint32 `json:"protocol_bps"`
	PlatformBps uint32 `json:"platform_bps"`
	TotalFee    string `json:"total_fee"`
}

func ComputeQuoteHash(req *QuoteRequest, protocol string, fees Fees) ([32]byte, error) {
	input := quoteHashInput{
		Asset:       req.Asset.Hex(),
		Amount:      req.Amount.String(),
		DestChain:   req.DestChain,
		Preference:  string(req.Preference),
		Protocol:    protocol,
		ProtocolBps: fees.ProtocolBps,
		PlatformBps: fees.PlatformBps,
		TotalFee:    fees.Total().String(),
	}

	canonical, err := canonicalJSON(input)
	if err != nil {
		return [32]byte{}, err
	}

	return blake2b.Sum256(canonical), nil
}

type requestIDInput struct {
	Initiator string `json:"initiator"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	DestChain uint64 `json:"dest_chain"`
	Protocol  string `json:"protocol"`
	Timestamp int64  `json:"timestamp"`
	Nonce     uint64 `json:"nonce"`
}

// ComputeRequestID derives a transfer identifier. The per-initiator nonce keeps
// two otherwise identical initiations within the same second apart.
func ComputeRequestID(initiator, asset common.Address, amount decimal.Decimal, destChain uint64, protocol string, at time.Time, nonce uint64) (common.Hash, error) {
	input := requestIDInput{
		Initiator: initiator.Hex(),
		Asset:     asset.Hex(),
		Amount:    amount.String(),
		DestChain: destChain,
		Protocol:  protocol,
		Timestamp: at.Unix(),
		Nonce:     nonce,
	}

	canonical, err := canonicalJSON(input)
	if err != nil {
		return common.Hash{}, err
	}

	return common.Hash(blake2b.Sum256(canonical)), nil
}

func canonicalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sorted := make(map[string]interface{})
	for _, k := range keys {
		sorted[k] = obj[k]
	}

	return json.Marshal(sorted)
}
