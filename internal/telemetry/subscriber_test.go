package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laserops/internal/job"
)

func TestTopicJobID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		topic  string
		wantID string
		wantOK bool
	}{
		{"laser/j-123/progress", "j-123", true},
		{"laser/550e8400-e29b-41d4-a716-446655440000/progress", "550e8400-e29b-41d4-a716-446655440000", true},
		{"laser//progress", "", false},
		{"laser/j-123/status", "", false},
		{"machine/j-123/progress", "", false},
		{"laser/j-123", "", false},
		{"laser/j-123/progress/extra", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			t.Parallel()
			id, ok := TopicJobID(tt.topic)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

// fakeApplier records applied updates.
type fakeApplier struct {
	jobID string
	upd   *job.ProgressUpdate
	calls int
	err   error
}

func (f *fakeApplier) UpdateProgress(ctx context.Context, id string, upd *job.ProgressUpdate) (*job.Job, error) {
	f.calls++
	f.jobID = id
	f.upd = upd
	if f.err != nil {
		return nil, f.err
	}
	return &job.Job{ID: id}, nil
}

func TestSubscriber_Handle(t *testing.T) {
	t.Parallel()
	applier := &fakeApplier{}
	s := NewSubscriber(nil, applier, nil)

	s.handle("laser/j-1/progress", []byte(`{"progressPct":42.5,"currentOperation":"cutting outline","status":"cutting"}`))

	require.Equal(t, 1, applier.calls)
	assert.Equal(t, "j-1", applier.jobID)
	require.NotNil(t, applier.upd.ProgressPct)
	assert.Equal(t, 42.5, *applier.upd.ProgressPct)
	require.NotNil(t, applier.upd.CurrentOperation)
	assert.Equal(t, "cutting outline", *applier.upd.CurrentOperation)
	require.NotNil(t, applier.upd.Status)
	assert.Equal(t, job.StatusCutting, *applier.upd.Status)
}

func TestSubscriber_HandlePartialReport(t *testing.T) {
	t.Parallel()
	applier := &fakeApplier{}
	s := NewSubscriber(nil, applier, nil)

	s.handle("laser/j-1/progress", []byte(`{"progressPct":10}`))

	require.Equal(t, 1, applier.calls)
	require.NotNil(t, applier.upd.ProgressPct)
	assert.Nil(t, applier.upd.CurrentOperation)
	assert.Nil(t, applier.upd.Status)
}

func TestSubscriber_HandleDropsGarbage(t *testing.T) {
	t.Parallel()
	applier := &fakeApplier{}
	s := NewSubscriber(nil, applier, nil)

	s.handle("laser/j-1/progress", []byte(`not json`))
	s.handle("other/j-1/progress", []byte(`{"progressPct":10}`))
	s.handle("laser//progress", []byte(`{"progressPct":10}`))

	assert.Equal(t, 0, applier.calls, "garbage input must never reach the job service")
}

func TestSubscriber_HandleStatusUppercased(t *testing.T) {
	t.Parallel()
	applier := &fakeApplier{}
	s := NewSubscriber(nil, applier, nil)

	s.handle("laser/j-1/progress", []byte(`{"status":"completed"}`))

	require.Equal(t, 1, applier.calls)
	require.NotNil(t, applier.upd.Status)
	assert.Equal(t, job.StatusCompleted, *applier.upd.Status)
}
