package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// DefaultMaxParallel bounds concurrent ScanTask activities per batch.
const DefaultMaxParallel = 4

// BatchScanInput is the input for BatchScanWorkflow.
type BatchScanInput struct {
	TaskIDs        []int
	Source         string
	MinOverlapArea *float64
	MaxPairs       int
	MaxComparisons int
	MaxParallel    int
}

// TaskFailure records a task whose scan failed.
type TaskFailure struct {
	TaskID int
	Error  string
}

// BatchScanResult lists the stored runs and failures, both in input order.
type BatchScanResult struct {
	Runs     []ScanTaskResult
	Failures []TaskFailure
}

// BatchScanWorkflow scans many Tasking Manager tasks, MaxParallel at a time. A failed
// task does not stop the batch; the workflow fails only when every task failed.
func BatchScanWorkflow(ctx workflow.Context, input BatchScanInput) (*BatchScanResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting batch scan", "tasks", len(input.TaskIDs), "source", input.Source)

	result := &BatchScanResult{}
	if len(input.TaskIDs) == 0 {
		return result, nil
	}

	parallel := input.MaxParallel
	if parallel <= 0 {
		parallel = DefaultMaxParallel
	}

	// Scans are not retried: a failure is reported in Failures.
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	ids := input.TaskIDs
	for start := 0; start < len(ids); start += parallel {
		end := min(start+parallel, len(ids))

		futures := make([]workflow.Future, 0, end-start)
		for _, id := range ids[start:end] {
			futures = append(futures, workflow.ExecuteActivity(ctx, ScanTaskActivity, ScanTaskInput{
				TaskID:         id,
				Source:         input.Source,
				MinOverlapArea: input.MinOverlapArea,
				MaxPairs:       input.MaxPairs,
				MaxComparisons: input.MaxComparisons,
			}))
		}

		for i, f := range futures {
			var out ScanTaskResult
			if err := f.Get(ctx, &out); err != nil {
				taskID := ids[start+i]
				logger.Warn("task scan failed", "taskID", taskID, "error", err)
				result.Failures = append(result.Failures, TaskFailure{TaskID: taskID, Error: err.Error()})
				continue
			}
			result.Runs = append(result.Runs, out)
		}
	}

	logger.Info("Batch scan finished", "runs", len(result.Runs), "failures", len(result.Failures))
	if len(result.Runs) == 0 {
		return result, temporal.NewApplicationError("every task scan failed", "BatchScanFailed")
	}
	return result, nil
}
