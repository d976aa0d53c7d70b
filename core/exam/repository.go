package exam

import "context"

type (
	ExamStore interface {
		FindExam(ctx context.Context, id string) (Exam, error)
		FindOngoingExams(ctx context.Context) ([]Exam, error)
		CreateExam(ctx context.Context, e Exam) (Exam, error)
		// UpdateExam saves e only if the stored exam is still ongoing, else it returns ErrStateConflict.
		UpdateExam(ctx context.Context, e Exam) (Exam, error)
		// DeleteExam deletes the exam along with its attender states.
		DeleteExam(ctx context.Context, id string) error
	}

	AttenderStateStore interface {
		FindAttenderState(ctx context.Context, id string) (AttenderState, error)
		FindStudentAttenderState(ctx context.Context, examID, studentID string) (AttenderState, error)
		FindOngoingAttenderStates(ctx context.Context, examID string) ([]AttenderState, error)
		CreateAttenderState(ctx context.Context, as AttenderState) (AttenderState, error)
		// UpdateAttenderState saves as only if the stored attempt is still ongoing, else it returns ErrAlreadyComplete.
		UpdateAttenderState(ctx context.Context, as AttenderState) (AttenderState, error)
	}

	Repository interface {
		ExamStore
		AttenderStateStore
		// Atomic runs fn in a transaction: every change fn makes through repo is committed, or none is.
		Atomic(ctx context.Context, fn func(repo Repository) error) error
	}
)
