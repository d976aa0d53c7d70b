package exam

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/schedule"
	"github.com/trezcool/academia/core/user"
)

// Scheduler arms one deferred job per exam. *schedule.Registry implements it.
type Scheduler interface {
	Register(key string, deadline time.Time, fn schedule.Func)
	Cancel(key string)
}

// armedDeadliner is implemented by schedulers that can report the deadline of an armed job.
type armedDeadliner interface {
	Deadline(key string) (time.Time, bool)
}

var (
	_ Scheduler      = (*schedule.Registry)(nil)
	_ armedDeadliner = (*schedule.Registry)(nil)
)

type (
	Option func(*Service)

	// Service drives exams through their lifecycle: ongoing, then cancelled or finished.
	// Every transition of a given exam runs under that exam's lock.
	Service struct {
		repo      Repository
		scheduler Scheduler
		validate  *validator.Validate
		logger    core.Logger
		auth      Authorizer
		notifier  Notifier
		clock     core.Clock
		locks     *keyedMutex
	}
)

func WithClock(clock core.Clock) Option {
	return func(svc *Service) { svc.clock = clock }
}

func WithAuthorizer(auth Authorizer) Option {
	return func(svc *Service) { svc.auth = auth }
}

func WithNotifier(notifier Notifier) Option {
	return func(svc *Service) { svc.notifier = notifier }
}

func NewService(
	repo Repository,
	scheduler Scheduler,
	validate *validator.Validate,
	logger core.Logger,
	opts ...Option,
) *Service {
	svc := &Service{
		repo:      repo,
		scheduler: scheduler,
		validate:  validate,
		logger:    logger,
		auth:      CreatorAuthorizer{},
		notifier:  nopNotifier{},
		clock:     core.SystemClock,
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (svc *Service) Create(ctx context.Context, ne NewExam, actor user.User) (Exam, error) {
	if err := ne.Validate(svc.validate); err != nil {
		return Exam{}, err
	}

	now := svc.clock.Now()
	e := Exam{
		Title:        core.CleanString(ne.Title),
		ClassroomID:  ne.ClassroomID,
		CreatorID:    ne.CreatorID,
		CreatorEmail: core.CleanString(ne.CreatorEmail, true /* lower */),
		BeginTime:    ne.BeginTime.UTC(),
		EndTime:      ne.EndTime.UTC(),
		TimeLimit:    ne.TimeLimit,
		PassScore:    ne.PassScore,
		State:        StateOngoing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := svc.auth.RequireCreator(actor, e); err != nil {
		return Exam{}, err
	}

	e, err := svc.repo.CreateExam(ctx, e)
	if err != nil {
		return Exam{}, errors.Wrap(err, "creating exam")
	}
	svc.schedule(e)
	return e, nil
}

// Get returns the exam to its creator, an admin, or one of its attenders.
func (svc *Service) Get(ctx context.Context, id string, actor user.User) (Exam, error) {
	e, err := svc.repo.FindExam(ctx, id)
	if err != nil {
		return Exam{}, errors.Wrap(err, "finding exam")
	}
	if err := svc.auth.RequireCreator(actor, e); err == nil {
		return e, nil
	}
	if actor.IsZero() {
		return Exam{}, ErrForbidden
	}
	if _, err := svc.repo.FindStudentAttenderState(ctx, id, actor.ID); err != nil {
		if errors.Cause(err) == ErrAttenderNotFound {
			return Exam{}, ErrForbidden
		}
		return Exam{}, errors.Wrap(err, "finding attender state")
	}
	return e, nil
}

func (svc *Service) Update(ctx context.Context, id string, ue UpdateExam, actor user.User) (Exam, error) {
	if err := ue.Validate(svc.validate); err != nil {
		return Exam{}, err
	}

	unlock := svc.locks.Lock(id)
	defer unlock()

	e, err := svc.repo.FindExam(ctx, id)
	if err != nil {
		return Exam{}, errors.Wrap(err, "finding exam")
	}
	if err := terminalErr(e); err != nil {
		return Exam{}, err
	}
	if err := svc.auth.RequireCreator(actor, e); err != nil {
		return Exam{}, err
	}

	prevEnd := e.EndTime
	ue.apply(&e)
	if ue.Title != nil {
		e.Title = core.CleanString(e.Title)
	}
	if !e.EndTime.After(e.BeginTime) {
		return Exam{}, windowError()
	}
	e.UpdatedAt = svc.clock.Now()

	e, err = svc.repo.UpdateExam(ctx, e)
	if err != nil {
		return Exam{}, errors.Wrap(svc.conflictErr(ctx, id, err), "updating exam")
	}
	if !e.EndTime.Equal(prevEnd) {
		svc.schedule(e)
	}
	return e, nil
}

func (svc *Service) Cancel(ctx context.Context, id string, actor user.User) error {
	unlock := svc.locks.Lock(id)
	defer unlock()

	e, err := svc.repo.FindExam(ctx, id)
	if err != nil {
		return errors.Wrap(err, "finding exam")
	}
	if err := terminalErr(e); err != nil {
		return err
	}
	if err := svc.auth.RequireCreator(actor, e); err != nil {
		return err
	}

	e.State = StateCancelled
	e.UpdatedAt = svc.clock.Now()
	if e, err = svc.repo.UpdateExam(ctx, e); err != nil {
		return errors.Wrap(svc.conflictErr(ctx, id, err), "cancelling exam")
	}
	svc.scheduler.Cancel(id)

	svc.logger.Info("exam cancelled", map[string]interface{}{"exam": id}, actor)
	svc.notify(ctx, e, EventCancelled)
	return nil
}

func (svc *Service) Finish(ctx context.Context, id string, actor user.User) error {
	unlock := svc.locks.Lock(id)
	defer unlock()

	e, err := svc.repo.FindExam(ctx, id)
	if err != nil {
		return errors.Wrap(err, "finding exam")
	}
	if err := terminalErr(e); err != nil {
		return err
	}
	if err := svc.auth.RequireCreator(actor, e); err != nil {
		return err
	}

	e, marked, err := svc.finishInternal(ctx, e)
	if err != nil {
		return errors.Wrap(svc.conflictErr(ctx, id, err), "finishing exam")
	}
	// the job may have fired already; cancelling it is then a no-op
	svc.scheduler.Cancel(id)

	svc.logger.Info("exam finished", map[string]interface{}{"exam": id, "marked": marked}, actor)
	svc.notify(ctx, e, EventFinished)
	return nil
}

// AutoFinish finishes e on behalf of the system, once its end time is reached.
// It does nothing when the exam is gone, already terminal, or its end time moved since e was read.
func (svc *Service) AutoFinish(ctx context.Context, e Exam) error {
	_, err := svc.autoFinish(ctx, e.ID, e.EndTime)
	return err
}

func (svc *Service) autoFinish(ctx context.Context, id string, deadline time.Time) (bool, error) {
	unlock := svc.locks.Lock(id)
	defer unlock()

	e, err := svc.repo.FindExam(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "finding exam")
	}
	if e.IsTerminal() {
		return false, nil
	}
	if !e.EndTime.Equal(deadline) {
		svc.logger.Debug("exam end time moved, skipping auto-finish", map[string]interface{}{
			"exam":     id,
			"deadline": deadline,
			"end_time": e.EndTime,
		})
		return false, nil
	}

	e, marked, err := svc.finishInternal(ctx, e)
	if err != nil {
		if errors.Cause(err) == ErrStateConflict {
			return false, nil
		}
		return false, errors.Wrap(err, "auto-finishing exam")
	}

	svc.logger.Info("exam auto-finished", map[string]interface{}{"exam": id, "marked": marked})
	svc.notify(ctx, e, EventAutoFinished)
	return true, nil
}

// finishInternal closes every ongoing attempt of e and marks it finished, in a single transaction.
// The caller must hold the lock of e.
func (svc *Service) finishInternal(ctx context.Context, e Exam) (Exam, int, error) {
	now := svc.clock.Now()
	var marked int
	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		marked = 0
		states, err := repo.FindOngoingAttenderStates(ctx, e.ID)
		if err != nil {
			return errors.Wrap(err, "finding ongoing attender states")
		}
		for _, as := range states {
			if _, err := svc.mark(ctx, repo, as, now); err != nil {
				if errors.Cause(err) == ErrAlreadyComplete {
					continue
				}
				return errors.Wrapf(err, "marking attender state %s", as.ID)
			}
			marked++
		}

		e.State = StateFinished
		e.UpdatedAt = now
		e, err = repo.UpdateExam(ctx, e)
		return err
	})
	return e, marked, err
}

// conflictErr turns a lost compare-and-set into the terminal error of the exam as stored now.
// The in-process lock does not cover writers in other processes, such as the admin sweep.
func (svc *Service) conflictErr(ctx context.Context, id string, err error) error {
	if errors.Cause(err) != ErrStateConflict {
		return err
	}
	e, findErr := svc.repo.FindExam(ctx, id)
	if findErr != nil {
		return errors.Wrap(findErr, "finding exam")
	}
	if tErr := terminalErr(e); tErr != nil {
		return tErr
	}
	return err
}

func (svc *Service) Delete(ctx context.Context, id string, actor user.User) error {
	unlock := svc.locks.Lock(id)
	defer unlock()

	e, err := svc.repo.FindExam(ctx, id)
	if err != nil {
		return errors.Wrap(err, "finding exam")
	}
	if err := svc.auth.RequireCreator(actor, e); err != nil {
		return err
	}

	if err := svc.repo.DeleteExam(ctx, id); err != nil {
		return errors.Wrap(err, "deleting exam")
	}
	svc.scheduler.Cancel(id)
	return nil
}

// armed tells whether the job of e is already registered for its current end time.
func (svc *Service) armed(e Exam) bool {
	d, ok := svc.scheduler.(armedDeadliner)
	if !ok {
		return false
	}
	deadline, ok := d.Deadline(e.ID)
	return ok && deadline.Equal(e.EndTime)
}

func (svc *Service) schedule(e Exam) {
	id, deadline := e.ID, e.EndTime
	svc.scheduler.Register(id, deadline, func(ctx context.Context) error {
		_, err := svc.autoFinish(ctx, id, deadline)
		return err
	})
}

func (svc *Service) notify(ctx context.Context, e Exam, ev Event) {
	if err := svc.notifier.ExamClosed(ctx, e, ev); err != nil {
		svc.logger.Warn("notifying exam closure", err, map[string]interface{}{"exam": e.ID, "event": ev})
	}
}
