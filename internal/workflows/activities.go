package workflows

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/overlapscan/internal/core/domain"
	"github.com/samirrijal/overlapscan/internal/core/usecases"
)

// ScanTaskActivity is the registered name of ScanActivities.ScanTask.
const ScanTaskActivity = "ScanTask"

// errTypeInvalidScan marks failures that would fail again on retry.
const errTypeInvalidScan = "InvalidScan"

// ScanRunner is the part of usecases.ScanService the activities need.
type ScanRunner interface {
	Run(ctx context.Context, req usecases.ScanRequest) (*domain.ScanRun, error)
}

// ScanActivities holds the activity implementations for BatchScanWorkflow.
type ScanActivities struct {
	Scans ScanRunner
}

// ScanTaskInput selects one Tasking Manager task and the scan budgets.
type ScanTaskInput struct {
	TaskID         int
	Source         string
	MinOverlapArea *float64
	MaxPairs       int
	MaxComparisons int
}

// ScanTaskResult is the stored run for one task.
type ScanTaskResult struct {
	TaskID         int
	RunID          string
	PairCount      int
	Truncated      bool
	GeometryErrors int
}

// ScanTask resolves the task's area, scans it and stores the run.
func (a *ScanActivities) ScanTask(ctx context.Context, in ScanTaskInput) (*ScanTaskResult, error) {
	taskID := in.TaskID
	run, err := a.Scans.Run(ctx, usecases.ScanRequest{
		TaskID:         &taskID,
		Source:         in.Source,
		MinOverlapArea: in.MinOverlapArea,
		MaxPairs:       in.MaxPairs,
		MaxComparisons: in.MaxComparisons,
	})
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) || errors.Is(err, domain.ErrTaskNotFound) || errors.Is(err, domain.ErrUnknownSource) {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), errTypeInvalidScan, err)
		}
		return nil, fmt.Errorf("scan task %d: %w", in.TaskID, err)
	}

	activity.GetLogger(ctx).Info("task scanned",
		"taskID", in.TaskID,
		"runID", run.ID.String(),
		"pairs", len(run.Result.Pairs),
		"truncated", run.Result.Truncated,
	)
	return &ScanTaskResult{
		TaskID:         in.TaskID,
		RunID:          run.ID.String(),
		PairCount:      len(run.Result.Pairs),
		Truncated:      run.Result.Truncated,
		GeometryErrors: run.Result.GeometryErrors,
	}, nil
}
