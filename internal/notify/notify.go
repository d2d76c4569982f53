// Package notify delivers committed document updates to the fan-out layer.
// The coordinator publishes fire-and-forget; the transport subscribes to the
// per-document channel and relays payloads to connected clients verbatim.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/redis/go-redis/v9"

	"collabtext/internal/ot"
)

// Update is the committed-update payload. Its JSON form is exactly the
// server-to-client documentUpdate message, so subscribers can forward it
// without re-encoding.
type Update struct {
	Type       string        `json:"type"`
	DocID      string        `json:"documentId"`
	Op         *ot.Operation `json:"transformedOperation,omitempty"`
	NewContent string        `json:"newContent"`
	NewVersion int           `json:"newVersion"`
}

// TypeDocumentUpdate is the wire type tag carried by every Update.
const TypeDocumentUpdate = "documentUpdate"

// Publisher emits committed updates. Errors are the publisher's problem;
// the coordinator does not roll back a commit over a failed publish.
type Publisher interface {
	Publish(ctx context.Context, u Update) error
	Close() error
}

// Subscriber exposes the stream of update payloads for one document. The
// returned cancel func must be called when the consumer goes away.
type Subscriber interface {
	Subscribe(ctx context.Context, docID string) (<-chan []byte, func())
}

// Channel returns the Redis channel name for a document.
func Channel(docID string) string {
	return "doc:" + docID
}

// RedisPublisher publishes updates to the document's Redis channel,
// retrying transient failures with capped exponential backoff.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, u Update) error {
	u.Type = TypeDocumentUpdate
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 5 * time.Second
	err = backoff.Retry(func() error {
		return p.client.Publish(ctx, Channel(u.DocID), payload).Err()
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return fmt.Errorf("publish to %s: %w", Channel(u.DocID), err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return nil
}

// RedisSubscriber adapts Redis pub/sub to the Subscriber interface.
type RedisSubscriber struct {
	client *redis.Client
}

func NewRedisSubscriber(client *redis.Client) *RedisSubscriber {
	return &RedisSubscriber{client: client}
}

func (s *RedisSubscriber) Subscribe(ctx context.Context, docID string) (<-chan []byte, func()) {
	pubsub := s.client.Subscribe(ctx, Channel(docID))
	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			default:
				// Slow consumer; the transport catches up from GetState.
				log.Printf("notify: dropping update for %s, subscriber backed up", docID)
			}
		}
	}()
	return out, func() {
		if err := pubsub.Close(); err != nil {
			log.Printf("notify: close subscription for %s: %v", docID, err)
		}
	}
}

// NopPublisher discards updates. Used by tests and log-only deployments.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Update) error { return nil }
func (NopPublisher) Close() error                          { return nil }
