package worker

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"indexer_server/core/domain"
)

// JobType represents the type of a job.
type JobType = string

// Job types
const (
	JobIndexBackfill JobType = "index.backfill"
	JobIndexEvents   JobType = "index.events"
)

type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Retries   int             `json:"retries"`

	// done, when set, receives the job's outcome so a waiting submitter can
	// block until the work actually finished (buffered, one send).
	done chan error
}

func NewMessage(jobType string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   raw,
		CreatedAt: time.Now(),
	}, nil
}

// ParsePayload decodes a message payload into a typed job struct.
func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Job payloads

type BackfillPayload struct {
	User         domain.User `json:"user"`
	EndTimestamp int64       `json:"end_timestamp"`
}

type EntityEventsPayload struct {
	Batch domain.EventBatch `json:"batch"`
}
