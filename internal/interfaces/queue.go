package interfaces

import (
	"context"
)

// JobMessage is the work-queue payload dispatched from Submit to the
// execution workers. The job record itself stays in job storage; the message
// only names the job to execute.
type JobMessage struct {
	JobID string `json:"job_id"`
}

// JobQueue enqueues work for the execution workers. Delivery is
// at-least-once; consumers must tolerate redelivery of already-terminal jobs.
type JobQueue interface {
	Enqueue(ctx context.Context, msg *JobMessage) error
}
