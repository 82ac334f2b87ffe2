package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskMetricsSnapshotAll refreshes the snapshot of every pipeline.
const TaskMetricsSnapshotAll = "pipeline.metrics.snapshot_all"

// TaskMetricsSnapshot refreshes the snapshot of one pipeline.
const TaskMetricsSnapshot = "pipeline.metrics.snapshot"

type MetricsSnapshotPayload struct {
	TenantID   string `json:"tenantId"`
	PipelineID string `json:"pipelineId"`
}

func NewMetricsSnapshotAllTask() *asynq.Task {
	return asynq.NewTask(TaskMetricsSnapshotAll, nil)
}

func NewMetricsSnapshotTask(payload MetricsSnapshotPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMetricsSnapshot, data), nil
}

func ParseMetricsSnapshotPayload(task *asynq.Task) (MetricsSnapshotPayload, error) {
	var payload MetricsSnapshotPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return MetricsSnapshotPayload{}, err
	}
	return payload, nil
}
