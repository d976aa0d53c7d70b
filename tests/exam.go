package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/exam"
	"github.com/trezcool/academia/core/user"
)

// NewValidator returns a validator set up the way the app does it.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	exam.InitValidators(validate, translator)
	return validate, translator
}

func NewUser(id string, roles ...string) user.User {
	return user.User{
		ID:       id,
		Username: id,
		Email:    id + "@test.cd",
		Roles:    roles,
	}
}

// CreateExam stores an ongoing exam of creator, open from begin to end.
func CreateExam(t *testing.T, repo exam.Repository, creator user.User, begin, end time.Time, limit time.Duration) exam.Exam {
	t.Helper()
	e, err := repo.CreateExam(context.Background(), exam.Exam{
		Title:        "Exam",
		ClassroomID:  "classroom",
		CreatorID:    creator.ID,
		CreatorEmail: creator.Email,
		BeginTime:    begin.UTC(),
		EndTime:      end.UTC(),
		TimeLimit:    limit,
		State:        exam.StateOngoing,
		CreatedAt:    begin.UTC(),
		UpdatedAt:    begin.UTC(),
	})
	if err != nil {
		t.Fatalf("CreateExam() failed: %v", err)
	}
	return e
}

// CreateAttenderState stores an ongoing attempt of student, started at start.
func CreateAttenderState(t *testing.T, repo exam.Repository, e exam.Exam, student user.User, start time.Time) exam.AttenderState {
	t.Helper()
	as, err := repo.CreateAttenderState(context.Background(), exam.AttenderState{
		ExamID:        e.ID,
		StudentID:     student.ID,
		Progress:      exam.ProgressOngoing,
		ExamStartTime: start.UTC(),
	})
	if err != nil {
		t.Fatalf("CreateAttenderState() failed: %v", err)
	}
	return as
}
