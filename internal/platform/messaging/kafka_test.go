package messaging

import (
	"context"
	"testing"
	"time"

	"faucet/internal/shared/events"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestInProcessPublishReachesSubscriber(t *testing.T) {
	bus, err := NewKafka(nil, nil)
	if err != nil {
		t.Fatalf("new kafka failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan events.Envelope, 1)
	bus.Subscribe(ctx, "airdrop.disbursements", func(_ context.Context, event events.Envelope) error {
		received <- event
		return nil
	})

	if err := bus.Publish(ctx, "airdrop.disbursements", events.Envelope{EventID: "evt_1"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	select {
	case event := <-received:
		if event.EventID != "evt_1" {
			t.Fatalf("unexpected event %s", event.EventID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected subscriber to receive event")
	}
}

func TestProducerPublishKeysByPartition(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "5Grw" {
			t.Errorf("expected partition key 5Grw, got %s", key)
		}
		return nil
	})

	bus, err := withProducer(producer)
	if err != nil {
		t.Fatalf("new kafka failed: %v", err)
	}
	err = bus.Publish(context.Background(), "airdrop.disbursements", events.Envelope{
		EventID:      "evt_2",
		EventType:    "airdrop.disbursement.confirmed",
		PartitionKey: "5Grw",
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func withProducer(producer sarama.SyncProducer) (*Kafka, error) {
	bus, err := NewKafka(nil, nil)
	if err != nil {
		return nil, err
	}
	bus.producer = producer
	return bus, nil
}
