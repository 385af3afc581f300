package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskPhaseExpiry = "routing.phase.expiry"

const TaskNotificationOutboxDue = "notification.outbox.due"

type PhaseExpiryPayload struct {
	LeadID string `json:"leadId"`
	Phase  string `json:"phase"`
}

type NotificationOutboxDuePayload struct {
	OutboxID string `json:"outboxId"`
}

func NewPhaseExpiryTask(payload PhaseExpiryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPhaseExpiry, data), nil
}

func ParsePhaseExpiryPayload(task *asynq.Task) (PhaseExpiryPayload, error) {
	var payload PhaseExpiryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return PhaseExpiryPayload{}, err
	}
	return payload, nil
}

func NewNotificationOutboxDueTask(payload NotificationOutboxDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationOutboxDue, data), nil
}

func ParseNotificationOutboxDuePayload(task *asynq.Task) (NotificationOutboxDuePayload, error) {
	var payload NotificationOutboxDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotificationOutboxDuePayload{}, err
	}
	return payload, nil
}
