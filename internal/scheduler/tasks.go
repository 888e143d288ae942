// Package scheduler provides the asynq task definitions, enqueue client and
// worker for deferred lead-event replay.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskLeadReplay = "ingestion.lead.replay"

type LeadReplayPayload struct {
	ExternalLeadID string `json:"externalLeadId"`
}

func NewLeadReplayTask(payload LeadReplayPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadReplay, data), nil
}

func ParseLeadReplayPayload(task *asynq.Task) (LeadReplayPayload, error) {
	var payload LeadReplayPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadReplayPayload{}, err
	}
	return payload, nil
}
