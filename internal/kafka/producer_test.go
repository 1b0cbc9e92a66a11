package kafka

import (
	"context"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"testing"
)

func TestProducerCloseIsIdempotentAndDoesNotLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	// nothing is published, so no broker connection is attempted
	p := NewProducer([]string{"127.0.0.1:1"}, 4, zaptest.NewLogger(t))
	p.Start(context.Background())
	p.Close()
	p.Close()
	p.WaitClosed()
}

func TestPublishDropsWhenInboxFull(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, 1, zaptest.NewLogger(t))
	// loop not started: the second publish must not block
	p.Publish("t", []byte("k"), []byte("v1"))
	p.Publish("t", []byte("k"), []byte("v2"))
	if len(p.inbox) != 1 {
		t.Fatalf("inbox len = %d, want 1", len(p.inbox))
	}
}
