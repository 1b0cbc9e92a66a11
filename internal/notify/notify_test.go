package notify

import (
	"context"
	"github.com/ariefcatur/go-seller-settlement/internal/events"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"testing"
)

func TestEmitRecords(t *testing.T) {
	rec := &Recorder{}
	Emit(context.Background(), rec, zaptest.NewLogger(t), "api", events.EventWithdrawalRequested, "w-1",
		events.WithdrawalRequestedPayload{WithdrawalID: "w-1", AmountCents: 100})

	got := rec.OfType(events.EventWithdrawalRequested)
	require.Len(t, got, 1)
	require.Equal(t, "w-1", got[0].CorrelationID)
	require.Equal(t, "api", got[0].Producer)
}

func TestEmitNilNotifier(t *testing.T) {
	Emit(context.Background(), nil, zaptest.NewLogger(t), "api", events.EventOrderCreated, "o", struct{}{})
}
