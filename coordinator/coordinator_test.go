package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestProcessLifecycle(t *testing.T) {
	c := NewCoordinator()

	p, err := c.StartProcess(context.Background(), "users")
	require.NoError(t, err)
	assert.Equal(t, types.StatusProcessing, p.Status)

	_, err = c.StartProcess(context.Background(), "users")
	assert.ErrorIs(t, err, ErrProcessExists)

	c.UpdateProgress("users", types.Progress{Total: 4, Processed: 1, Changed: 1})
	got := c.GetProcessStatus("users")
	require.NotNil(t, got)
	assert.Equal(t, 25.0, got.Progress.Percent)
	assert.Len(t, c.ListProcesses(), 1)

	c.CompleteProcess("users", nil)
	got = c.GetProcessStatus("users")
	require.NotNil(t, got)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.False(t, got.EndTime.IsZero())
	assert.Empty(t, c.ListProcesses())
	assert.Error(t, p.Context().Err())

	// the id can be reused once the process is done
	_, err = c.StartProcess(context.Background(), "users")
	require.NoError(t, err)
	c.StopProcess("users")
	assert.Equal(t, types.StatusCancelled, c.GetProcessStatus("users").Status)

	assert.Nil(t, c.GetProcessStatus("missing"))
}

func TestCompleteProcessStatus(t *testing.T) {
	tests := []struct {
		name     string
		progress types.Progress
		err      error
		want     types.Status
	}{
		{"clean", types.Progress{Processed: 3}, nil, types.StatusCompleted},
		{"document failures", types.Progress{Processed: 3, Failed: 1}, nil, types.StatusCompletedWithErrors},
		{"error", types.Progress{}, errors.New("boom"), types.StatusFailed},
		{"cancelled", types.Progress{}, context.Canceled, types.StatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCoordinator()
			_, err := c.StartProcess(context.Background(), tt.name)
			require.NoError(t, err)
			c.UpdateProgress(tt.name, tt.progress)
			c.CompleteProcess(tt.name, tt.err)

			got := c.GetProcessStatus(tt.name)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.err, got.Error)
		})
	}
}

func TestParentCancellationMarksProcess(t *testing.T) {
	c := NewCoordinator()
	ctx, cancel := context.WithCancel(context.Background())

	_, err := c.StartProcess(ctx, "users")
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		return c.GetProcessStatus("users").Status == types.StatusCancelled
	}, time.Second, 5*time.Millisecond)

	c.CompleteProcess("users", nil)
	got := c.GetProcessStatus("users")
	assert.Equal(t, types.StatusCancelled, got.Status)
	assert.ErrorIs(t, got.Error, context.Canceled)
}

func TestShutdownWaitsForRunners(t *testing.T) {
	c := NewCoordinator()

	for _, id := range []string{"a", "b"} {
		p, err := c.StartProcess(context.Background(), id)
		require.NoError(t, err)
		go func() {
			<-p.Context().Done()
			c.CompleteProcess(p.ID, p.Context().Err())
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))
	assert.True(t, c.IsShuttingDown())
	assert.Equal(t, types.StatusCancelled, c.GetProcessStatus("a").Status)
	assert.Equal(t, types.StatusCancelled, c.GetProcessStatus("b").Status)

	_, err := c.StartProcess(context.Background(), "c")
	assert.ErrorIs(t, err, ErrShuttingDown)

	// a second shutdown is a no-op
	require.NoError(t, c.Shutdown(ctx))
}

func TestShutdownTimeout(t *testing.T) {
	c := NewCoordinator()
	_, err := c.StartProcess(context.Background(), "stuck")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Shutdown(ctx), context.DeadlineExceeded)

	c.CompleteProcess("stuck", nil)
}
