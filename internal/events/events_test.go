package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (c *capturePublisher) Publish(subj string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subj)
	c.payloads = append(c.payloads, data)
	return nil
}

func TestBus_StampsSequenceAndID(t *testing.T) {
	rec := NewRecorder()
	bus := NewBus(nil, rec)

	first := bus.Emit(context.Background(), Event{Kind: KindPaused})
	second := bus.Emit(context.Background(), Event{Kind: KindUnpaused})

	require.Equal(t, uint64(1), first.Seq)
	require.Equal(t, uint64(2), second.Seq)
	require.NotEmpty(t, first.ID)
	require.NotEqual(t, first.ID, second.ID)
	require.False(t, first.Time.IsZero())
	require.Len(t, rec.Events(), 2)
	require.Equal(t, uint64(2), bus.LastSeq())
}

func TestBus_FailingSinkDoesNotBlockOthers(t *testing.T) {
	rec := NewRecorder()
	failing := SinkFunc(func(ctx context.Context, ev Event) error {
		return errors.New("down")
	})
	bus := NewBus(nil, failing, rec)

	bus.Emit(context.Background(), Event{Kind: KindRouteAdded, Protocol: "fast"})

	require.Len(t, rec.OfKind(KindRouteAdded), 1)
}

func TestNATSPublisher_SubjectAndPayload(t *testing.T) {
	conn := &capturePublisher{}
	pub := NewNATSPublisher(conn, "")

	ev := Event{
		ID:        "abc",
		Seq:       7,
		Kind:      KindTransferInitiated,
		Protocol:  "fast",
		Initiator: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Amount:    decimal.NewFromInt(1000000),
		TotalFee:  decimal.NewFromInt(1500),
	}
	require.NoError(t, pub.Publish(context.Background(), ev))

	require.Equal(t, []string{"crossroute.events.transfer_initiated"}, conn.subjects)

	decoded, err := Decode(conn.payloads[0])
	require.NoError(t, err)
	require.Equal(t, ev.Seq, decoded.Seq)
	require.Equal(t, ev.Initiator, decoded.Initiator)
	require.True(t, decoded.TotalFee.Equal(ev.TotalFee))
}

func TestNATSPublisher_PropagatesError(t *testing.T) {
	pub := NewNATSPublisher(&capturePublisher{err: errors.New("no responders")}, "x")
	err := pub.Publish(context.Background(), Event{Kind: KindPaused})
	require.Error(t, err)
}

func TestDecode_RejectsMissingKind(t *testing.T) {
	data, err := json.Marshal(map[string]any{"id": "1"})
	require.NoError(t, err)

	_, err = Decode(data)
	require.Error(t, err)

	_, err = Decode([]byte("{"))
	require.Error(t, err)
}
