package exam_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core/exam"
	testutil "github.com/trezcool/academia/tests"
)

// failingRepo fails to read one exam.
type failingRepo struct {
	exam.Repository
	failID *string
}

func (r failingRepo) FindExam(ctx context.Context, id string) (exam.Exam, error) {
	if id == *r.failID {
		return exam.Exam{}, errors.New("connection reset")
	}
	return r.Repository.FindExam(ctx, id)
}

func TestService_Sweep(t *testing.T) {
	ctx := context.Background()
	failID := new(string)
	env := newEnv(t, func(repo exam.Repository) exam.Repository {
		return failingRepo{Repository: repo, failID: failID}
	})

	// exams persisted before a restart: the scheduler knows nothing about them
	overdue := testutil.CreateExam(t, env.repo, teacher, t0, t0.Add(time.Hour), 30*time.Minute)
	broken := testutil.CreateExam(t, env.repo, teacher, t0, t0.Add(time.Hour), 30*time.Minute)
	pending := testutil.CreateExam(t, env.repo, teacher, t0, t0.Add(3*time.Hour), 30*time.Minute)
	cancelled := testutil.CreateExam(t, env.repo, teacher, t0, t0.Add(time.Hour), 30*time.Minute)
	testutil.CreateAttenderState(t, env.repo, overdue, student, t0)
	testutil.CreateAttenderState(t, env.repo, overdue, otherStudent, t0.Add(time.Minute))
	testutil.CreateAttenderState(t, env.repo, broken, student, t0)
	require.NoError(t, env.svc.Cancel(ctx, cancelled.ID, teacher))
	*failID = broken.ID

	env.clock.Set(t0.Add(2 * time.Hour))
	res, err := env.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, exam.SweepResult{Finished: 1, Rescheduled: 1, Failed: 1}, res)

	assert.True(t, env.stored(t, overdue.ID).Finished())
	assert.Empty(t, env.ongoingAttenders(t, overdue.ID))

	deadline, ok := env.sched.Deadline(pending.ID)
	require.True(t, ok)
	assert.Equal(t, pending.EndTime, deadline)
	_, ok = env.sched.Deadline(cancelled.ID)
	assert.False(t, ok)

	assert.True(t, env.logger.Contains("error", broken.ID))
	assert.Len(t, env.ongoingAttenders(t, broken.ID), 1)

	// the next sweep picks up where the failing one left off
	*failID = ""
	res, err = env.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, exam.SweepResult{Finished: 1, Rescheduled: 1}, res)
	assert.True(t, env.stored(t, broken.ID).Finished())
	assert.Empty(t, env.ongoingAttenders(t, broken.ID))
}

func TestService_Sweep_cancelledContext(t *testing.T) {
	env := newEnv(t)
	testutil.CreateExam(t, env.repo, teacher, t0, t0.Add(time.Hour), 30*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := env.svc.Sweep(ctx)
	assert.Equal(t, context.Canceled, err)
}

func TestService_Sweep_armedJobs(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	pending := testutil.CreateExam(t, env.repo, teacher, t0, t0.Add(3*time.Hour), 30*time.Minute)

	_, err := env.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, env.sched.registrations())

	res, err := env.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, exam.SweepResult{Rescheduled: 1}, res)
	assert.Equal(t, 1, env.sched.registrations(), "an armed job is left alone")

	// end time moved by another process
	pending.EndTime = pending.EndTime.Add(time.Hour)
	_, err = env.repo.UpdateExam(ctx, pending)
	require.NoError(t, err)

	_, err = env.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, env.sched.registrations())
	deadline, ok := env.sched.Deadline(pending.ID)
	require.True(t, ok)
	assert.Equal(t, pending.EndTime, deadline)
}
