package rabbitmq

import (
	"context"
	"testing"

	"github.com/angelmondragon/tablepos-backend/pkg/config"
)

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(context.Background(), config.RealtimeConfig{Exchange: "x"}, nil); err == nil {
		t.Fatalf("expected error without url")
	}
	if _, err := New(context.Background(), config.RealtimeConfig{RabbitMQURL: "amqp://localhost"}, nil); err == nil {
		t.Fatalf("expected error without exchange")
	}
}

func TestDisconnectedClient(t *testing.T) {
	c := &Client{exchange: "tablepos.changes"}
	if c.IsAlive() {
		t.Fatalf("zero client should not be alive")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error")
	}
	if err := c.Publish(context.Background(), "orders", []byte("{}")); err == nil {
		t.Fatalf("expected publish error")
	}
	if _, _, err := c.Bind(context.Background(), "orders"); err == nil {
		t.Fatalf("expected bind error")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
