package scheduler

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingJob struct {
	name  string
	err   error
	calls int
}

func (j *recordingJob) Run() error {
	j.calls++
	return j.err
}

func (j *recordingJob) Name() string {
	return j.name
}

func quietLog() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func TestAddJob_RejectsInvalidSchedule(t *testing.T) {
	s := New(quietLog())

	err := s.AddJob("not-a-schedule", &recordingJob{name: "bad"})
	require.Error(t, err)
}

func TestRunNow_ExecutesImmediately(t *testing.T) {
	s := New(quietLog())

	job := &recordingJob{name: "cycle"}
	require.NoError(t, s.AddJob("@every 1h", job))
	require.NoError(t, s.RunNow(job))
	assert.Equal(t, 1, job.calls)

	failing := &recordingJob{name: "poll", err: errors.New("boom")}
	assert.Error(t, s.RunNow(failing))
}

func TestStartStop_Drains(t *testing.T) {
	s := New(quietLog())
	s.Start()
	s.Stop()
}
