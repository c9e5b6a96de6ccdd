package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

type QueueConfig struct {
	Workers     int           // number of workers
	PollTimeout time.Duration // BRPOP block time per poll
	// FailedLimit caps the failed-message list; older entries are trimmed.
	FailedLimit int64
}

// Message is popped before its job runs, so each one is handled at most once.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	FailedAt   *time.Time      `json:"failed_at,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// ParsePayload decodes a job payload. In-process callers may pass the value
// itself; payloads read back from Redis arrive as raw JSON.
func ParsePayload[T any](payload interface{}) (*T, error) {
	var result T
	var raw []byte

	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	case map[string]interface{}:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("re-encode payload: %w", err)
		}
		raw = b
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &result, nil
}
