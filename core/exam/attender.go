package exam

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/user"
)

// Attend starts the attempt of a student. It is idempotent: a student attending twice gets their
// existing attempt back, so the start time of an attempt never changes.
func (svc *Service) Attend(ctx context.Context, examID string, actor user.User) (AttenderState, error) {
	if actor.IsZero() || !actor.IsStudent() {
		return AttenderState{}, ErrForbidden
	}

	unlock := svc.locks.Lock(examID)
	defer unlock()

	e, err := svc.repo.FindExam(ctx, examID)
	if err != nil {
		return AttenderState{}, errors.Wrap(err, "finding exam")
	}
	if err := terminalErr(e); err != nil {
		return AttenderState{}, err
	}

	as, err := svc.repo.FindStudentAttenderState(ctx, examID, actor.ID)
	switch {
	case err == nil:
		return as, nil
	case errors.Cause(err) != ErrAttenderNotFound:
		return AttenderState{}, errors.Wrap(err, "finding attender state")
	}

	now := svc.clock.Now()
	if !e.InWindow(now) {
		return AttenderState{}, ErrOutOfTimeRange
	}

	as, err = svc.repo.CreateAttenderState(ctx, AttenderState{
		ExamID:        examID,
		StudentID:     actor.ID,
		Progress:      ProgressOngoing,
		ExamStartTime: now,
	})
	if err != nil {
		return AttenderState{}, errors.Wrap(err, "creating attender state")
	}
	return as, nil
}

// Submit completes an attempt ahead of the exam end.
func (svc *Service) Submit(ctx context.Context, id string, sa SubmitAttempt, actor user.User) (AttenderState, error) {
	if err := sa.Validate(svc.validate); err != nil {
		return AttenderState{}, err
	}

	as, err := svc.repo.FindAttenderState(ctx, id)
	if err != nil {
		return AttenderState{}, errors.Wrap(err, "finding attender state")
	}

	unlock := svc.locks.Lock(as.ExamID)
	defer unlock()

	// the exam may have been finished while we waited for the lock
	if as, err = svc.repo.FindAttenderState(ctx, id); err != nil {
		return AttenderState{}, errors.Wrap(err, "finding attender state")
	}
	if actor.IsZero() || (as.StudentID != actor.ID && !actor.IsPrivileged()) {
		return AttenderState{}, ErrForbidden
	}
	if as.IsComplete() {
		return AttenderState{}, ErrAlreadyComplete
	}

	e, err := svc.repo.FindExam(ctx, as.ExamID)
	if err != nil {
		return AttenderState{}, errors.Wrap(err, "finding exam")
	}
	if err := terminalErr(e); err != nil {
		return AttenderState{}, err
	}

	now := svc.clock.Now()
	if !e.InWindow(now) {
		return AttenderState{}, ErrOutOfTimeRange
	}
	if now.After(as.ExamStartTime.Add(e.TimeLimit)) {
		return AttenderState{}, ErrPastDeadline
	}

	as.Progress = ProgressComplete
	as.Score = sa.Score
	as.CompletedAt = &now
	as, err = svc.repo.UpdateAttenderState(ctx, as)
	if err != nil {
		return AttenderState{}, errors.Wrap(err, "submitting attempt")
	}
	return as, nil
}

// mark closes an attempt on behalf of the system, without any time check. The score is left as is.
func (svc *Service) mark(ctx context.Context, repo Repository, as AttenderState, now time.Time) (AttenderState, error) {
	as.Progress = ProgressComplete
	as.CompletedAt = &now
	return repo.UpdateAttenderState(ctx, as)
}
