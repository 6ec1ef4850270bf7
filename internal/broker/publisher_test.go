package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/leafsii/dsc-ledger/internal/domain"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type publishCall struct {
	subject string
	data    []byte
	msgID   string
}

// fakeJetStream records publishes; every other JetStream method panics if called.
type fakeJetStream struct {
	jetstream.JetStream
	calls []publishCall
	err   error
}

func (f *fakeJetStream) PublishMsg(_ context.Context, msg *nats.Msg, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, publishCall{subject: msg.Subject, data: msg.Data, msgID: msg.Header.Get(nats.MsgIdHdr)})
	return &jetstream.PubAck{Stream: DefaultStream, Sequence: uint64(len(f.calls))}, nil
}

func TestSubject(t *testing.T) {
	tests := []struct {
		name  string
		event domain.Event
		want  string
	}{
		{"with asset", domain.Event{Type: domain.EventDeposited, Asset: "WETH"}, "dsc.events.collateral_deposited.weth"},
		{"debt only", domain.Event{Type: domain.EventMinted}, "dsc.events.debt_minted"},
		{"dotted asset", domain.Event{Type: domain.EventLiquidated, Asset: "w.btc"}, "dsc.events.liquidation.w_btc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Subject(DefaultSubjectPrefix, tt.event))
		})
	}
}

func TestPublish(t *testing.T) {
	js := &fakeJetStream{}
	p := NewPublisher(js, "", zap.NewNop().Sugar())

	e := domain.Event{
		ID:        "evt-1",
		Type:      domain.EventDeposited,
		User:      "alice",
		Asset:     "WETH",
		Amount:    "1000",
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, p.Publish(context.Background(), e))

	require.Len(t, js.calls, 1)
	assert.Equal(t, "dsc.events.collateral_deposited.weth", js.calls[0].subject)
	assert.Equal(t, "evt-1", js.calls[0].msgID)

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(js.calls[0].data, &decoded))
	assert.Equal(t, e, decoded)

	assert.NoError(t, p.Close())
}

func TestPublishError(t *testing.T) {
	js := &fakeJetStream{err: errors.New("no responders")}
	p := NewPublisher(js, "custom", zap.NewNop().Sugar())

	err := p.Publish(context.Background(), domain.Event{ID: "evt-2", Type: domain.EventBurned})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evt-2")
}
