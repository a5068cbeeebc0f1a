package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentic-finance/kestrel/internal/domain"
)

func TestChannelBusPublishSubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	received := make(chan *domain.Message, 1)
	_, err := b.Subscribe(ctx, "agent-1", domain.TopicDecisionRecorded, func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := b.Publish(ctx, "agent-1", domain.TopicDecisionRecorded, []byte(`{"txId":"tx-1"}`)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg.AgentID != "agent-1" {
			t.Errorf("expected agent-1, got %s", msg.AgentID)
		}
		if msg.Topic != domain.TopicDecisionRecorded {
			t.Errorf("expected topic %s, got %s", domain.TopicDecisionRecorded, msg.Topic)
		}
		if string(msg.Payload) != `{"txId":"tx-1"}` {
			t.Errorf("payload mismatch: %s", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered within 1s")
	}
}

func TestChannelBusAgentIsolation(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var count atomic.Int64
	_, err := b.Subscribe(ctx, "agent-1", domain.TopicSignalRaised, func(ctx context.Context, msg *domain.Message) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// A different agent's message must not reach this subscriber.
	if err := b.Publish(ctx, "agent-2", domain.TopicSignalRaised, []byte("x")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if count.Load() != 0 {
		t.Error("subscriber must not see another agent's messages")
	}
}

func TestChannelBusMultipleSubscribers(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		once := sync.Once{}
		_, err := b.Subscribe(ctx, "agent-1", domain.TopicAdaptationApplied, func(ctx context.Context, msg *domain.Message) error {
			once.Do(wg.Done)
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
	}

	if err := b.Publish(ctx, "agent-1", domain.TopicAdaptationApplied, []byte("x")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all subscribers received the message")
	}
}

func TestChannelBusUnsubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var count atomic.Int64
	sub, err := b.Subscribe(ctx, "agent-1", domain.TopicDecisionRecorded, func(ctx context.Context, msg *domain.Message) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if sub.Topic() != domain.TopicDecisionRecorded {
		t.Errorf("unexpected topic: %s", sub.Topic())
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}

	b.Publish(ctx, "agent-1", domain.TopicDecisionRecorded, []byte("x"))
	time.Sleep(50 * time.Millisecond)

	if count.Load() != 0 {
		t.Error("unsubscribed handler must not receive messages")
	}
}

func TestChannelBusClosed(t *testing.T) {
	b := NewChannelBus(10)
	ctx := context.Background()

	if err := b.Ping(ctx); err != nil {
		t.Errorf("ping on open bus failed: %v", err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("double close must be a no-op, got %v", err)
	}

	if err := b.Ping(ctx); err == nil {
		t.Error("ping on closed bus must fail")
	}
	if err := b.Publish(ctx, "agent-1", domain.TopicDecisionRecorded, []byte("x")); err == nil {
		t.Error("publish on closed bus must fail")
	}
	if _, err := b.Subscribe(ctx, "agent-1", domain.TopicDecisionRecorded, nil); err == nil {
		t.Error("subscribe on closed bus must fail")
	}
}

func TestChannelBusRequiresAgentID(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	if err := b.Publish(ctx, "", "topic", []byte("x")); err == nil {
		t.Error("publish without agent id must fail")
	}
	if _, err := b.Subscribe(ctx, "", "topic", nil); err == nil {
		t.Error("subscribe without agent id must fail")
	}
}

func TestNewFactory(t *testing.T) {
	b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	defer b.Close()

	if _, ok := b.(*ChannelBus); !ok {
		t.Errorf("expected channel bus, got %T", b)
	}

	if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
		t.Error("expected error for unsupported bus type")
	}
}
