package exam

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// State is the lifecycle state of an Exam. Cancelled and finished are terminal.
type State string

const (
	StateOngoing   State = "ongoing"
	StateCancelled State = "cancelled"
	StateFinished  State = "finished"
)

func (s State) IsTerminal() bool {
	return s == StateCancelled || s == StateFinished
}

// Progress of a student through an exam. It only moves from ongoing to complete.
type Progress string

const (
	ProgressOngoing  Progress = "ongoing"
	ProgressComplete Progress = "complete"
)

type (
	Exam struct {
		ID           string        `json:"id"`
		Title        string        `json:"title"`
		ClassroomID  string        `json:"classroom_id"`
		CreatorID    string        `json:"creator_id"`
		CreatorEmail string        `json:"creator_email,omitempty"`
		BeginTime    time.Time     `json:"begin_time"`
		EndTime      time.Time     `json:"end_time"`
		TimeLimit    time.Duration `json:"time_limit"`
		PassScore    *float64      `json:"pass_score,omitempty"`
		State        State         `json:"state"`
		CreatedAt    time.Time     `json:"created_at"`
		UpdatedAt    time.Time     `json:"updated_at"`
	}

	// AttenderState is one student's attempt at an exam.
	AttenderState struct {
		ID            string     `json:"id"`
		ExamID        string     `json:"exam_id"`
		StudentID     string     `json:"student_id"`
		Progress      Progress   `json:"progress"`
		Score         *float64   `json:"score,omitempty"`
		ExamStartTime time.Time  `json:"exam_start_time"`
		CompletedAt   *time.Time `json:"completed_at,omitempty"`
	}

	NewExam struct {
		Title        string        `json:"title" validate:"required,notblank"`
		ClassroomID  string        `json:"classroom_id" validate:"required"`
		CreatorID    string        `json:"creator_id" validate:"required"`
		CreatorEmail string        `json:"creator_email" validate:"omitempty,email"`
		BeginTime    time.Time     `json:"begin_time" validate:"required"`
		EndTime      time.Time     `json:"end_time" validate:"required"`
		TimeLimit    time.Duration `json:"time_limit" validate:"gt=0"`
		PassScore    *float64      `json:"pass_score" validate:"omitempty,gte=0"`
	}

	// UpdateExam holds the fields to change; nil fields are left untouched.
	UpdateExam struct {
		Title     *string        `json:"title" validate:"omitempty,notblank"`
		BeginTime *time.Time     `json:"begin_time"`
		EndTime   *time.Time     `json:"end_time"`
		TimeLimit *time.Duration `json:"time_limit" validate:"omitempty,gt=0"`
		PassScore *float64       `json:"pass_score" validate:"omitempty,gte=0"`
	}

	SubmitAttempt struct {
		Score *float64 `json:"score" validate:"omitempty,gte=0"`
	}

	SweepResult struct {
		Finished    int `json:"finished"`
		Rescheduled int `json:"rescheduled"`
		Failed      int `json:"failed"`
	}
)

func (e Exam) Cancelled() bool  { return e.State == StateCancelled }
func (e Exam) Finished() bool   { return e.State == StateFinished }
func (e Exam) IsTerminal() bool { return e.State.IsTerminal() }

// InWindow reports whether t is within [BeginTime, EndTime].
func (e Exam) InWindow(t time.Time) bool {
	return !t.Before(e.BeginTime) && !t.After(e.EndTime)
}

func (as AttenderState) IsComplete() bool {
	return as.Progress == ProgressComplete
}

// Deadline returns the personal deadline of the attender: the time limit counted
// from their start, capped by the end of the exam.
func (as AttenderState) Deadline(e Exam) time.Time {
	deadline := as.ExamStartTime.Add(e.TimeLimit)
	if e.EndTime.Before(deadline) {
		return e.EndTime
	}
	return deadline
}

func (ne NewExam) Validate(validate *validator.Validate) error {
	return validate.Struct(ne)
}

func (ue UpdateExam) Validate(validate *validator.Validate) error {
	return validate.Struct(ue)
}

func (ue UpdateExam) apply(e *Exam) {
	if ue.Title != nil {
		e.Title = *ue.Title
	}
	if ue.BeginTime != nil {
		e.BeginTime = ue.BeginTime.UTC()
	}
	if ue.EndTime != nil {
		e.EndTime = ue.EndTime.UTC()
	}
	if ue.TimeLimit != nil {
		e.TimeLimit = *ue.TimeLimit
	}
	if ue.PassScore != nil {
		e.PassScore = ue.PassScore
	}
}

func (sa SubmitAttempt) Validate(validate *validator.Validate) error {
	return validate.Struct(sa)
}
