package bus

import (
	"context"
	"testing"
	"time"

	"github.com/openrisk-labs/kite/internal/domain"
)

func waitFor(t *testing.T, ch <-chan *domain.Message) *domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestChannelBusPublishSubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	received := make(chan *domain.Message, 1)
	sub, err := b.Subscribe(ctx, "tenant-001", domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if sub.Topic() != domain.TopicDecision {
		t.Errorf("Topic = %q", sub.Topic())
	}

	if err := b.Publish(ctx, "tenant-001", domain.TopicDecision, []byte(`{"score":40}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msg := waitFor(t, received)
	if msg.TenantID != "tenant-001" || msg.Topic != domain.TopicDecision {
		t.Errorf("msg = %+v", msg)
	}
	if string(msg.Payload) != `{"score":40}` {
		t.Errorf("Payload = %s", msg.Payload)
	}
	if msg.ID == "" || msg.Timestamp == 0 {
		t.Error("message envelope incomplete")
	}
}

func TestChannelBusTenantIsolation(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	got := make(chan *domain.Message, 2)
	if _, err := b.Subscribe(ctx, "tenant-001", domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
		got <- msg
		return nil
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	b.Publish(ctx, "tenant-002", domain.TopicAlert, []byte("other tenant"))
	b.Publish(ctx, "tenant-001", domain.TopicAlert, []byte("mine"))

	msg := waitFor(t, got)
	if string(msg.Payload) != "mine" {
		t.Fatalf("received %q, want only own-tenant messages", msg.Payload)
	}
	select {
	case extra := <-got:
		t.Fatalf("leaked cross-tenant message: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelBusRequiresTenant(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	if err := b.Publish(ctx, "", domain.TopicDecision, nil); err == nil {
		t.Error("publish without tenant accepted")
	}
	if _, err := b.Subscribe(ctx, "", domain.TopicDecision, nil); err == nil {
		t.Error("subscribe without tenant accepted")
	}
}

func TestChannelBusUnsubscribeStopsDelivery(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	got := make(chan *domain.Message, 1)
	sub, err := b.Subscribe(ctx, "tenant-001", domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
		got <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	// Delivery stops once the subscription goroutine observes the cancel.
	time.Sleep(20 * time.Millisecond)

	b.Publish(ctx, "tenant-001", domain.TopicDecision, []byte("late"))
	select {
	case msg := <-got:
		t.Fatalf("delivered after unsubscribe: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelBusClose(t *testing.T) {
	b := NewChannelBus(10)
	ctx := context.Background()

	if err := b.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Publish(ctx, "tenant-001", domain.TopicDecision, nil); err == nil {
		t.Error("publish on closed bus accepted")
	}
	if _, err := b.Subscribe(ctx, "tenant-001", domain.TopicDecision, nil); err == nil {
		t.Error("subscribe on closed bus accepted")
	}
}
