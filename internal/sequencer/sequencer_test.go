package sequencer

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-seller-settlement/internal/store/memstore"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"regexp"
	"sync"
	"testing"
	"time"
)

var day = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

func TestNextFormatsDailySequence(t *testing.T) {
	s := New(memstore.New(), zaptest.NewLogger(t), nil)
	ctx := context.Background()

	require.Equal(t, Number{Value: "ORD-20261017-0001"}, s.Next(ctx, day))
	require.Equal(t, Number{Value: "ORD-20261017-0002"}, s.Next(ctx, day))
	// a new day starts its own counter
	require.Equal(t, Number{Value: "ORD-20261018-0001"}, s.Next(ctx, day.Add(24*time.Hour)))
}

func TestNextOverflowsPastFourDigits(t *testing.T) {
	st := memstore.New()
	st.SetCounter(Key(day), 9999)
	s := New(st, zaptest.NewLogger(t), nil)
	require.Equal(t, "ORD-20261017-10000", s.Next(context.Background(), day).Value)
}

func TestNextConcurrentIsDistinctAndGapless(t *testing.T) {
	s := New(memstore.New(), zaptest.NewLogger(t), nil)
	const n = 200

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num := s.Next(context.Background(), day)
			mu.Lock()
			seen[num.Value] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
	require.True(t, seen["ORD-20261017-0001"])
	require.True(t, seen["ORD-20261017-0200"])
}

func TestNextFallsBackWhenCounterUnavailable(t *testing.T) {
	st := memstore.New()
	st.FailCounters(errors.New("connection refused"))
	s := New(st, zaptest.NewLogger(t), nil)

	num := s.Next(context.Background(), day)
	require.True(t, num.Degraded)
	require.Regexp(t, regexp.MustCompile(`^ORD-20261017-\d{10}$`), num.Value)
}
