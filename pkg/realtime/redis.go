package realtime

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

type messageStream interface {
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

type redisSubscriber interface {
	Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error)
}

type redisPublisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// RedisSource reads changes from one pub/sub channel per watched table,
// named "<prefix>:<table>".
type RedisSource struct {
	open   func(ctx context.Context, channel string) (messageStream, error)
	prefix string
	logg   *logger.Logger
}

func NewRedisSource(client redisSubscriber, prefix string, logg *logger.Logger) *RedisSource {
	return &RedisSource{
		open: func(ctx context.Context, channel string) (messageStream, error) {
			return client.Subscribe(ctx, channel)
		},
		prefix: prefix,
		logg:   logg,
	}
}

func (s *RedisSource) Subscribe(ctx context.Context, table enums.WatchedTable, handle Handler) (Subscription, error) {
	channel := ChannelName(s.prefix, table)
	stream, err := s.open(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		msgs := stream.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				change, err := Decode([]byte(msg.Payload))
				if err != nil {
					if s.logg != nil {
						s.logg.Warn(s.logg.WithField(ctx, "channel", channel), "dropping malformed change: "+err.Error())
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
			err = stream.Close()
			<-done
		})
		return err
	}), nil
}

// RedisBroadcaster publishes changes on the channels RedisSource reads.
type RedisBroadcaster struct {
	client redisPublisher
	prefix string
}

func NewRedisBroadcaster(client redisPublisher, prefix string) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, prefix: prefix}
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, change Change) error {
	if err := change.Validate(); err != nil {
		return err
	}
	payload, err := Encode(change)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, ChannelName(b.prefix, change.Table), string(payload))
}

// ChannelName joins the channel prefix and the table name.
func ChannelName(prefix string, table enums.WatchedTable) string {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		return string(table)
	}
	return prefix + ":" + string(table)
}
