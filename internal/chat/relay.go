package chat

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisRelay fans room broadcasts out to every server process through
// Redis pub/sub, one channel per thread.
type RedisRelay struct {
	client *redis.Client
	prefix string
	log    *logrus.Logger
}

func NewRedisRelay(client *redis.Client, prefix string, logger *logrus.Logger) *RedisRelay {
	return &RedisRelay{client: client, prefix: prefix, log: logger}
}

func (r *RedisRelay) channel(requestID string) string {
	return r.prefix + requestID
}

func (r *RedisRelay) Publish(ctx context.Context, env RelayEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel(env.RequestID), payload).Err()
}

// Start subscribes to every room channel and returns once the
// subscription is confirmed. Envelopes are passed to deliver until ctx ends.
func (r *RedisRelay) Start(ctx context.Context, deliver func(RelayEnvelope)) error {
	pubsub := r.client.PSubscribe(ctx, r.prefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return err
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env RelayEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					r.log.WithError(err).WithField("channel", msg.Channel).Warn("discarding malformed relay envelope")
					continue
				}
				if env.RequestID == "" {
					env.RequestID = strings.TrimPrefix(msg.Channel, r.prefix)
				}
				deliver(env)
			}
		}
	}()
	return nil
}
