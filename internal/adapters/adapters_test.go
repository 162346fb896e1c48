package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/lucendex/crossroute/internal/config"
	"github.com/lucendex/crossroute/internal/ledger"
)

var (
	acrossID = common.HexToAddress("0x0000000000000000000000000000000000000f01")
	hopID    = common.HexToAddress("0x0000000000000000000000000000000000000f02")
)

func sampleOrder() ledger.DispatchOrder {
	return ledger.DispatchOrder{
		RequestID: common.Hash{0xab},
		Protocol:  "fast",
		Asset:     common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"),
		Amount:    decimal.NewFromInt(998500),
		DestChain: 42161,
		Payload:   []byte("opaque"),
	}
}

func TestHTTPAdapter_Accepted(t *testing.T) {
	var got ledger.DispatchOrder
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, acrossID.Hex(), r.Header.Get("X-Adapter-Identity"))
		require.NotEmpty(t, r.Header.Get("X-Request-ID"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(Ack{Accepted: true})
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	a := NewHTTPAdapter(acrossID, srv.URL, time.Second, logger)

	require.NoError(t, a.Dispatch(context.Background(), sampleOrder()))
	require.Equal(t, common.Hash{0xab}, got.RequestID)
	require.True(t, got.Amount.Equal(decimal.NewFromInt(998500)))
	require.Equal(t, []byte("opaque"), got.Payload)
}

func TestHTTPAdapter_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "refused ack",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(Ack{Accepted: false, Reason: "unsupported chain"})
			},
			wantErr: ErrRejected,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantErr: ErrRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			a := NewHTTPAdapter(acrossID, srv.URL, time.Second, nil)
			require.ErrorIs(t, a.Dispatch(context.Background(), sampleOrder()), tt.wantErr)
		})
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()
	require.Error(t, NewHTTPAdapter(acrossID, srv.URL, time.Second, nil).Dispatch(context.Background(), sampleOrder()))
}

type fakeRequester struct {
	subject string
	data    []byte
	reply   []byte
	err     error
}

func (f *fakeRequester) RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error) {
	f.subject = subj
	f.data = data
	if f.err != nil {
		return nil, f.err
	}
	return &nats.Msg{Subject: subj, Data: f.reply}, nil
}

func TestNATSAdapter(t *testing.T) {
	conn := &fakeRequester{reply: []byte(`{"accepted":true}`)}
	a := NewNATSAdapter(hopID, conn, "executors.hop", time.Second, nil)

	require.Equal(t, hopID, a.Identity())
	require.NoError(t, a.Dispatch(context.Background(), sampleOrder()))
	require.Equal(t, "executors.hop", conn.subject)

	var sent ledger.DispatchOrder
	require.NoError(t, json.Unmarshal(conn.data, &sent))
	require.Equal(t, uint64(42161), sent.DestChain)

	conn.reply = []byte(`{"accepted":false,"reason":"paused"}`)
	err := a.Dispatch(context.Background(), sampleOrder())
	require.ErrorIs(t, err, ErrRejected)
	require.Contains(t, err.Error(), "paused")

	conn.err = nats.ErrTimeout
	require.ErrorIs(t, a.Dispatch(context.Background(), sampleOrder()), nats.ErrTimeout)
}

func TestSet(t *testing.T) {
	set := NewSet()
	require.NoError(t, set.Register("across", NewHTTPAdapter(acrossID, "http://x", 0, nil)))
	require.ErrorIs(t, set.Register("again", NewHTTPAdapter(acrossID, "http://y", 0, nil)), ErrDuplicateIdentity)
	require.ErrorIs(t, set.Register("zero", NewHTTPAdapter(common.Address{}, "http://z", 0, nil)), ErrZeroIdentity)

	a, ok := set.Lookup(acrossID)
	require.True(t, ok)
	require.Equal(t, acrossID, a.Identity())
	require.Equal(t, "across", set.Name(acrossID))

	_, ok = set.Lookup(hopID)
	require.False(t, ok)
	require.Equal(t, 1, set.Len())
}

func TestFromConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()
	entries := []config.AdapterConfig{
		{Name: "across", Identity: acrossID.Hex(), Kind: config.AdapterHTTP, Endpoint: "http://executor"},
	}

	set, err := FromConfig(entries, nil, logger)
	require.NoError(t, err)
	_, ok := set.Lookup(acrossID)
	require.True(t, ok)

	entries = append(entries, config.AdapterConfig{Name: "hop", Identity: hopID.Hex(), Kind: config.AdapterNATS, Subject: "executors.hop"})
	_, err = FromConfig(entries, nil, logger)
	require.True(t, errors.Is(err, ErrNoNATS))
}
