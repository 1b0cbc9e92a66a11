// Package sequencer issues human-readable order numbers, one counter per
// calendar day: ORD-YYYYMMDD-NNNN.
package sequencer

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-seller-settlement/internal/metrics"
	"github.com/ariefcatur/go-seller-settlement/internal/store"
	"go.uber.org/zap"
	"math/rand"
	"sync"
	"time"
)

const counterTimeout = 2 * time.Second

type Number struct {
	Value string
	// Degraded numbers come from the timestamp fallback and are not part of
	// the gapless daily sequence.
	Degraded bool
}

type Sequencer struct {
	counters store.Counters
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

func New(counters store.Counters, log *zap.Logger, m *metrics.Metrics) *Sequencer {
	return &Sequencer{
		counters: counters,
		log:      log,
		metrics:  m,
		now:      time.Now,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func Key(date time.Time) string { return "order-" + date.Format("20060102") }

// Next allocates the number for an order placed on date. When the counter
// store cannot be reached it falls back to a timestamp+random suffix.
func (s *Sequencer) Next(ctx context.Context, date time.Time) Number {
	day := date.Format("20060102")

	cctx, cancel := context.WithTimeout(ctx, counterTimeout)
	defer cancel()
	seq, err := s.counters.Increment(cctx, Key(date))
	if err == nil {
		return Number{Value: fmt.Sprintf("ORD-%s-%04d", day, seq)}
	}

	n := s.fallback(day)
	s.metrics.SequencerFallback()
	s.log.Warn("order counter unavailable, issuing degraded order number",
		zap.String("counter_key", Key(date)),
		zap.String("order_number", n.Value),
		zap.Error(err))
	return n
}

func (s *Sequencer) fallback(day string) Number {
	ts := s.now().UnixMilli() % 1_000_000
	s.mu.Lock()
	r := s.rnd.Intn(10_000)
	s.mu.Unlock()
	return Number{Value: fmt.Sprintf("ORD-%s-%06d%04d", day, ts, r), Degraded: true}
}
