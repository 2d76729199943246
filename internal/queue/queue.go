package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message represents work to be processed.
type Message struct {
	Type string
	Body []byte
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// DeadLetterer parks messages that could not be handled so an operator can
// inspect or replay them.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, msg Message) error
}

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Message

	mu   sync.Mutex
	dead []Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for workers.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Len reports how many messages are waiting.
func (q *InMemory) Len() int { return len(q.ch) }

func (q *InMemory) DeadLetter(_ context.Context, msg Message) error {
	q.mu.Lock()
	q.dead = append(q.dead, msg)
	q.mu.Unlock()
	return nil
}

// Dead returns the dead-lettered messages.
func (q *InMemory) Dead() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Message(nil), q.dead...)
}

// DefaultKey is the Redis list registration events go through.
const DefaultKey = "kompetisi:events"

// deadSuffix names the list holding messages the worker gave up on.
const deadSuffix = ":dead"

// RedisQueue implements a Redis list-backed queue. Events are pushed on the
// left and popped from the right, so they are consumed in publish order.
type RedisQueue struct {
	client *redis.Client
	key    string
	wait   time.Duration
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	return &RedisQueue{client: client, key: key, wait: 5 * time.Second}
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	return q.client.LPush(ctx, q.key, serialize(msg)).Err()
}

// DeadLetter moves msg to the "<key>:dead" list.
func (q *RedisQueue) DeadLetter(ctx context.Context, msg Message) error {
	return q.client.LPush(ctx, q.key+deadSuffix, serialize(msg)).Err()
}

// Pending reports the queued and dead-lettered message counts.
func (q *RedisQueue) Pending(ctx context.Context) (queued, dead int64, err error) {
	pipe := q.client.Pipeline()
	queuedCmd := pipe.LLen(ctx, q.key)
	deadCmd := pipe.LLen(ctx, q.key+deadSuffix)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return queuedCmd.Val(), deadCmd.Val(), nil
}

// Consume streams messages using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, q.wait, q.key).Result()
			switch {
			case ctx.Err() != nil:
				return
			case errors.Is(err, redis.Nil):
				continue
			case err != nil:
				// redis down: back off instead of spinning
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			case len(res) != 2:
				continue
			}
			select {
			case out <- deserialize(res[1]):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Messages are stored as "Type|Body". Type never contains '|'.
func serialize(msg Message) string {
	return msg.Type + "|" + string(msg.Body)
}

func deserialize(s string) Message {
	typ, body, ok := strings.Cut(s, "|")
	if !ok {
		return Message{Body: []byte(s)}
	}
	return Message{Type: typ, Body: []byte(body)}
}
