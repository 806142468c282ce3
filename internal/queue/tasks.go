package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/variantflow/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeObjectCreated = "object:created"

type ObjectCreatedPayload struct {
	EventID    string              `json:"event_id"`
	Event      domain.TriggerEvent `json:"event"`
	ReceivedAt time.Time           `json:"received_at"`
}

func NewObjectCreatedTask(payload ObjectCreatedPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal object-created payload: %w", err)
	}
	return asynq.NewTask(TypeObjectCreated, body), nil
}

func ParseObjectCreatedPayload(task *asynq.Task) (ObjectCreatedPayload, error) {
	var payload ObjectCreatedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ObjectCreatedPayload{}, fmt.Errorf("unmarshal object-created payload: %w", err)
	}
	return payload, nil
}
