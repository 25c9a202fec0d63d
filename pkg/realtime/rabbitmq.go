package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpBinder interface {
	Bind(ctx context.Context, routingKey string) (<-chan amqp.Delivery, func() error, error)
}

type amqpPublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// RabbitSource consumes changes from the topic exchange; each subscription
// binds its own exclusive queue with the table name as routing key.
type RabbitSource struct {
	broker amqpBinder
	logg   *logger.Logger
}

func NewRabbitSource(broker amqpBinder, logg *logger.Logger) *RabbitSource {
	return &RabbitSource{broker: broker, logg: logg}
}

func (s *RabbitSource) Subscribe(ctx context.Context, table enums.WatchedTable, handle Handler) (Subscription, error) {
	msgs, closeFn, err := s.broker.Bind(ctx, string(table))
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", table, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				change, err := Decode(msg.Body)
				if err != nil {
					if s.logg != nil {
						s.logg.Warn(s.logg.WithField(ctx, "routing_key", msg.RoutingKey), "dropping malformed change: "+err.Error())
					}
					continue
				}
				handle(change)
			}
		}
	}()

	var once sync.Once
	return subscriptionFunc(func() error {
		var err error
		once.Do(func() {
			err = closeFn()
			<-done
		})
		return err
	}), nil
}

// RabbitBroadcaster publishes changes with the table name as routing key.
type RabbitBroadcaster struct {
	broker amqpPublisher
}

func NewRabbitBroadcaster(broker amqpPublisher) *RabbitBroadcaster {
	return &RabbitBroadcaster{broker: broker}
}

func (b *RabbitBroadcaster) Broadcast(ctx context.Context, change Change) error {
	if err := change.Validate(); err != nil {
		return err
	}
	body, err := Encode(change)
	if err != nil {
		return err
	}
	return b.broker.Publish(ctx, string(change.Table), body)
}
