package scheduler

import "time"

// TaskType identifies which scheduled service handles an EventBridge event.
type TaskType string

const (
	TaskOfflineSweep    TaskType = "offline_sweep"
	TaskRequeueDeferred TaskType = "requeue_deferred"
	TaskTriggerDigests  TaskType = "trigger_digests"
	TaskArchiveReadings TaskType = "archive_readings"
)

// JobPayload is the JSON payload sent by EventBridge to the jobs Lambda. It
// names the task to execute and optionally overrides the reference time for
// manual invocation and backfilling.
type JobPayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime replaces "now" for deterministic manual runs. If nil,
	// the current UTC time is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}
