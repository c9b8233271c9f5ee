package river

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// OperationWorker processes applied-operation jobs from the River queue.
// For now it logs the event; downstream versions dispatch to webhooks,
// reporting exports, or notification systems.
type OperationWorker struct {
	river.WorkerDefaults[OperationJobArgs]
}

// Work processes a single applied-operation job.
func (w *OperationWorker) Work(ctx context.Context, job *river.Job[OperationJobArgs]) error {
	slog.InfoContext(ctx, "processing applied operation",
		"operation", job.Args.OperationCode,
		"stream", job.Args.TenantStreamID,
		"seq", job.Args.Seq,
		"entity_kind", job.Args.EntityKind,
		"entity_id", job.Args.EntityID,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}
