package provision

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestReportSucceeded checks that a report with every step recorded and no failures succeeds.
func TestReportSucceeded(t *testing.T) {
	t.Parallel()

	start := time.Now()
	report := NewReport("builder", start)

	for _, step := range Steps() {
		status := StatusSucceeded
		if step == StepReloadEnv {
			status = StatusWarned
		}

		report.Record(StepResult{Step: step, Status: status})
	}

	report.Finish(start.Add(time.Minute))

	require.True(t, report.Succeeded)
	require.Empty(t, report.FailedStep)
	require.Empty(t, report.ErrorKind)
	require.Equal(t, start.Add(time.Minute), report.FinishedAt)
}

// TestReportFailure checks that a fatal result marks the report as failed.
func TestReportFailure(t *testing.T) {
	t.Parallel()

	report := NewReport("builder", time.Now())
	report.Record(StepResult{Step: StepPrivileges, Status: StatusSucceeded})
	report.Record(StepResult{
		Step:   StepDownloadTool,
		Status: StatusFailed,
		Err:    NewStepError(StepDownloadTool, ErrDependencyInstall, errors.New("exit status 100")),
	})
	report.Finish(time.Now())

	require.False(t, report.Succeeded)
	require.Equal(t, StepDownloadTool, report.FailedStep)
	require.Equal(t, "DependencyInstallError", report.ErrorKind)
	require.Contains(t, report.Error, "exit status 100")

	_, reached := report.Result(StepPackages)
	require.False(t, reached)

	res, reached := report.Result(StepPrivileges)
	require.True(t, reached)
	require.Equal(t, StatusSucceeded, res.Status)
}

// TestReportIncomplete ensures that a report without every step is not successful.
func TestReportIncomplete(t *testing.T) {
	t.Parallel()

	report := NewReport("builder", time.Now())
	report.Record(StepResult{Step: StepPrivileges, Status: StatusSucceeded})
	report.Finish(time.Now())

	require.False(t, report.Succeeded)
}

// TestReportClone verifies that Clone copies the step slice.
func TestReportClone(t *testing.T) {
	t.Parallel()

	require.Nil(t, (*Report)(nil).Clone())

	report := NewReport("builder", time.Now())
	report.Record(StepResult{Step: StepPrivileges, Status: StatusSucceeded})

	cloned := report.Clone()
	cloned.Steps[0].Status = StatusFailed

	require.Equal(t, StatusSucceeded, report.Steps[0].Status)
}
