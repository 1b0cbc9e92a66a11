package ledger

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// backoff grows base*2^attempt up to max plus up to 50% jitter.
type backoff struct {
	base time.Duration
	max  time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

func newBackoff(base, max time.Duration) *backoff {
	if base <= 0 {
		base = 20 * time.Millisecond
	}
	if max < base {
		max = base * 32
	}
	return &backoff{base: base, max: max, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (b *backoff) delay(attempt int) time.Duration {
	exp := b.base
	for i := 0; i < attempt && exp < b.max; i++ {
		exp *= 2
	}
	if exp > b.max {
		exp = b.max
	}
	b.mu.Lock()
	jitter := time.Duration(b.rnd.Int63n(int64(exp/2) + 1))
	b.mu.Unlock()
	return exp + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
