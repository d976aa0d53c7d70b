package exam_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core/exam"
	"github.com/trezcool/academia/core/user"
)

func TestService_Attend(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	ex := env.createExam(t)

	t.Run("before begin", func(t *testing.T) {
		env.clock.Set(ex.BeginTime.Add(-time.Second))
		_, err := env.svc.Attend(ctx, ex.ID, student)
		assert.Equal(t, exam.ErrOutOfTimeRange, errors.Cause(err))
	})

	t.Run("idempotent", func(t *testing.T) {
		env.clock.Set(ex.BeginTime.Add(5 * time.Minute))
		first, err := env.svc.Attend(ctx, ex.ID, student)
		require.NoError(t, err)
		assert.Equal(t, exam.ProgressOngoing, first.Progress)
		assert.Equal(t, env.clock.Now(), first.ExamStartTime)

		env.clock.Advance(10 * time.Minute)
		second, err := env.svc.Attend(ctx, ex.ID, student)
		require.NoError(t, err)
		assert.Equal(t, first, second, "the start time never changes")
	})

	t.Run("errors", func(t *testing.T) {
		cancelled := env.createExam(t)
		require.NoError(t, env.svc.Cancel(ctx, cancelled.ID, teacher))

		tests := []struct {
			name    string
			id      string
			actor   user.User
			wantErr error
		}{
			{name: "teacher", id: ex.ID, actor: teacher, wantErr: exam.ErrForbidden},
			{name: "anonymous", id: ex.ID, actor: user.User{}, wantErr: exam.ErrForbidden},
			{name: "unknown exam", id: "unknown", actor: otherStudent, wantErr: exam.ErrNotFound},
			{name: "cancelled exam", id: cancelled.ID, actor: otherStudent, wantErr: exam.ErrAlreadyCancelled},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := env.svc.Attend(ctx, tt.id, tt.actor)
				if errors.Cause(err) != tt.wantErr {
					t.Errorf("Attend() error = %v, wantErr %v", err, tt.wantErr)
				}
			})
		}
	})
}

func TestService_Submit_deadline(t *testing.T) {
	ctx := context.Background()
	score := 17.0

	tests := []struct {
		name    string
		after   time.Duration
		wantErr error
	}{
		{name: "one second before the time limit", after: 30*time.Minute - time.Second},
		{name: "at the time limit", after: 30 * time.Minute},
		{name: "one second past the time limit", after: 30*time.Minute + time.Second, wantErr: exam.ErrPastDeadline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)
			ex := env.createExam(t)

			start := ex.BeginTime.Add(20 * time.Minute)
			env.clock.Set(start)
			as := env.attend(t, ex.ID, student)[0]
			assert.Equal(t, start.Add(ex.TimeLimit), as.Deadline(ex))

			env.clock.Set(start.Add(tt.after))
			got, err := env.svc.Submit(ctx, as.ID, exam.SubmitAttempt{Score: &score}, student)
			if errors.Cause(err) != tt.wantErr {
				t.Fatalf("Submit() error = %v, wantErr %v", err, tt.wantErr)
			}

			stored, err := env.repo.FindAttenderState(ctx, as.ID)
			require.NoError(t, err)
			if tt.wantErr != nil {
				assert.Equal(t, exam.ProgressOngoing, stored.Progress)
				return
			}
			assert.Equal(t, exam.ProgressComplete, got.Progress)
			assert.Equal(t, score, *got.Score)
			assert.Equal(t, env.clock.Now(), *got.CompletedAt)
			assert.Equal(t, got, stored)
		})
	}
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	ex := env.createExam(t)
	late := env.createExam(t)
	cancelled := env.createExam(t)

	env.clock.Set(ex.BeginTime.Add(time.Minute))
	as := env.attend(t, ex.ID, student)[0]
	done := env.attend(t, ex.ID, otherStudent)[0]
	_, err := env.svc.Submit(ctx, done.ID, exam.SubmitAttempt{}, otherStudent)
	require.NoError(t, err)
	cancelledAs := env.attend(t, cancelled.ID, student)[0]
	require.NoError(t, env.svc.Cancel(ctx, cancelled.ID, teacher))

	// attempt started right before the end of the exam
	env.clock.Set(late.EndTime.Add(-time.Minute))
	lateAs := env.attend(t, late.ID, student)[0]
	assert.Equal(t, late.EndTime, lateAs.Deadline(late), "capped by the end of the exam")
	env.clock.Set(ex.BeginTime.Add(2 * time.Minute))

	negative := -1.0
	tests := []struct {
		name    string
		id      string
		sa      exam.SubmitAttempt
		actor   user.User
		now     time.Time
		wantErr error
		invalid bool
	}{
		{name: "unknown", id: "unknown", actor: student, wantErr: exam.ErrAttenderNotFound},
		{name: "another student", id: as.ID, actor: otherStudent, wantErr: exam.ErrForbidden},
		{name: "anonymous", id: as.ID, actor: user.User{}, wantErr: exam.ErrForbidden},
		{name: "already complete", id: done.ID, actor: otherStudent, wantErr: exam.ErrAlreadyComplete},
		{name: "cancelled exam", id: cancelledAs.ID, actor: student, wantErr: exam.ErrAlreadyCancelled},
		{name: "after the end of the exam", id: lateAs.ID, actor: student, now: late.EndTime.Add(time.Second), wantErr: exam.ErrOutOfTimeRange},
		{name: "negative score", id: as.ID, sa: exam.SubmitAttempt{Score: &negative}, actor: student, invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.now.IsZero() {
				prev := env.clock.Now()
				env.clock.Set(tt.now)
				defer env.clock.Set(prev)
			}

			_, err := env.svc.Submit(ctx, tt.id, tt.sa, tt.actor)
			if tt.invalid {
				assert.Error(t, err)
				return
			}
			if errors.Cause(err) != tt.wantErr {
				t.Errorf("Submit() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	t.Run("admin on behalf of the student", func(t *testing.T) {
		got, err := env.svc.Submit(ctx, as.ID, exam.SubmitAttempt{}, admin)
		require.NoError(t, err)
		assert.True(t, got.IsComplete())
	})
}
