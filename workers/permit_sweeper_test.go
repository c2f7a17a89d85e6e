package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExpirer struct {
	calls atomic.Int32
	err   error
}

func (c *countingExpirer) ExpireEnded(context.Context) (int64, error) {
	c.calls.Add(1)
	return 2, c.err
}

func TestPermitSweeperRunsOnSchedule(t *testing.T) {
	exp := &countingExpirer{}
	s := NewPermitSweeper(exp, "@every 1s", nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return exp.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestPermitSweeperRejectsBadSchedule(t *testing.T) {
	s := NewPermitSweeper(&countingExpirer{}, "not a schedule", nil)
	assert.Error(t, s.Start())
}

func TestSweepToleratesErrors(t *testing.T) {
	exp := &countingExpirer{err: errors.New("db locked")}
	s := NewPermitSweeper(exp, "@every 1h", nil)
	s.Sweep()
	assert.Equal(t, int32(1), exp.calls.Load())
}
