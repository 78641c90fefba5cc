package workflows_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/samirrijal/overlapscan/internal/core/domain"
	"github.com/samirrijal/overlapscan/internal/core/usecases"
	"github.com/samirrijal/overlapscan/internal/workflows"
)

type fakeRunner struct {
	mu   sync.Mutex
	reqs []usecases.ScanRequest
}

func (f *fakeRunner) Run(ctx context.Context, req usecases.ScanRequest) (*domain.ScanRun, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	switch *req.TaskID {
	case 404:
		return nil, domain.ErrTaskNotFound
	case 502:
		return nil, &domain.UpstreamError{Service: "postpass", Status: 502, Err: errors.New("Bad Gateway")}
	}
	return &domain.ScanRun{
		ID:     uuid.New(),
		TaskID: req.TaskID,
		Source: req.Source,
		Result: domain.ScanResult{
			Pairs:     make([]domain.OverlapPair, *req.TaskID%10),
			Truncated: *req.TaskID == 7,
		},
	}, nil
}

func TestBatchScanWorkflow(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	runner := &fakeRunner{}
	env.RegisterActivity(&workflows.ScanActivities{Scans: runner})

	env.ExecuteWorkflow(workflows.BatchScanWorkflow, workflows.BatchScanInput{
		TaskIDs:     []int{3, 404, 7, 502, 11},
		Source:      "postpass",
		MaxPairs:    50,
		MaxParallel: 2,
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var res workflows.BatchScanResult
	require.NoError(t, env.GetWorkflowResult(&res))

	require.Len(t, res.Runs, 3)
	assert.Equal(t, 3, res.Runs[0].TaskID)
	assert.Equal(t, 3, res.Runs[0].PairCount)
	assert.Equal(t, 7, res.Runs[1].TaskID)
	assert.True(t, res.Runs[1].Truncated)
	assert.Equal(t, 11, res.Runs[2].TaskID)

	require.Len(t, res.Failures, 2)
	assert.Equal(t, 404, res.Failures[0].TaskID)
	assert.Contains(t, res.Failures[0].Error, "task not found")
	assert.Equal(t, 502, res.Failures[1].TaskID)

	// One attempt per task, options passed through.
	require.Len(t, runner.reqs, 5)
	for _, r := range runner.reqs {
		assert.Equal(t, "postpass", r.Source)
		assert.Equal(t, 50, r.MaxPairs)
	}
}

func TestBatchScanWorkflow_AllFail(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterActivity(&workflows.ScanActivities{Scans: &fakeRunner{}})

	env.ExecuteWorkflow(workflows.BatchScanWorkflow, workflows.BatchScanInput{TaskIDs: []int{404}})
	require.True(t, env.IsWorkflowCompleted())
	assert.Error(t, env.GetWorkflowError())
}

func TestBatchScanWorkflow_Empty(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterActivity(&workflows.ScanActivities{Scans: &fakeRunner{}})

	env.ExecuteWorkflow(workflows.BatchScanWorkflow, workflows.BatchScanInput{})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var res workflows.BatchScanResult
	require.NoError(t, env.GetWorkflowResult(&res))
	assert.Empty(t, res.Runs)
	assert.Empty(t, res.Failures)
}

func TestScanTask_NonRetryable(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(&workflows.ScanActivities{Scans: &fakeRunner{}})

	_, err := env.ExecuteActivity(workflows.ScanTaskActivity, workflows.ScanTaskInput{TaskID: 404})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InvalidScan")

	val, err := env.ExecuteActivity(workflows.ScanTaskActivity, workflows.ScanTaskInput{TaskID: 5, Source: "overpass"})
	require.NoError(t, err)
	var out workflows.ScanTaskResult
	require.NoError(t, val.Get(&out))
	assert.Equal(t, 5, out.PairCount)
	assert.NotEmpty(t, out.RunID)
}
