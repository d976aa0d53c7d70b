package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/academia/core/exam"
)

type examRepository struct {
	db *DB
	tx *journal // nil outside a transaction
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db *DB) exam.Repository {
	return &examRepository{db: db}
}

// Atomic undoes the writes fn made when fn fails. Writes made outside fn in the meantime are kept.
// Nested calls join the outer transaction.
func (repo *examRepository) Atomic(ctx context.Context, fn func(repo exam.Repository) error) (err error) {
	if repo.tx != nil {
		return fn(repo)
	}

	repo.db.txMutex.Lock()
	defer repo.db.txMutex.Unlock()

	tx := newJournal()
	defer func() {
		if rec := recover(); rec != nil {
			repo.db.rollback(tx)
			panic(rec)
		}
		if err != nil {
			repo.db.rollback(tx)
		}
	}()

	if err = ctx.Err(); err != nil {
		return err
	}
	return fn(&examRepository{db: repo.db, tx: tx})
}

func (repo *examRepository) FindExam(_ context.Context, id string) (exam.Exam, error) {
	repo.db.exam.RLock()
	defer repo.db.exam.RUnlock()

	if e, ok := repo.db.exam.table[id]; ok {
		return *e, nil
	}
	return exam.Exam{}, exam.ErrNotFound
}

func (repo *examRepository) FindOngoingExams(_ context.Context) ([]exam.Exam, error) {
	repo.db.exam.RLock()
	defer repo.db.exam.RUnlock()

	exams := make([]exam.Exam, 0)
	for _, e := range repo.db.exam.table {
		if e.State == exam.StateOngoing {
			exams = append(exams, *e)
		}
	}
	sort.Slice(exams, func(i, j int) bool { return exams[i].EndTime.Before(exams[j].EndTime) })
	return exams, nil
}

func (repo *examRepository) CreateExam(_ context.Context, e exam.Exam) (exam.Exam, error) {
	repo.db.exam.Lock()
	defer repo.db.exam.Unlock()

	e.ID = uuid.New().String()
	repo.tx.saveExam(e.ID, nil)
	repo.db.exam.table[e.ID] = &e
	return e, nil
}

func (repo *examRepository) UpdateExam(_ context.Context, e exam.Exam) (exam.Exam, error) {
	repo.db.exam.Lock()
	defer repo.db.exam.Unlock()

	orig, ok := repo.db.exam.table[e.ID]
	if !ok {
		return exam.Exam{}, exam.ErrNotFound
	}
	if orig.State != exam.StateOngoing {
		return exam.Exam{}, exam.ErrStateConflict
	}
	// immutable fields
	e.ClassroomID = orig.ClassroomID
	e.CreatorID = orig.CreatorID
	e.CreatedAt = orig.CreatedAt

	repo.tx.saveExam(e.ID, orig)
	repo.db.exam.table[e.ID] = &e
	return e, nil
}

func (repo *examRepository) DeleteExam(_ context.Context, id string) error {
	repo.db.exam.Lock()
	defer repo.db.exam.Unlock()
	repo.db.attender.Lock()
	defer repo.db.attender.Unlock()

	orig, ok := repo.db.exam.table[id]
	if !ok {
		return exam.ErrNotFound
	}
	repo.tx.saveExam(id, orig)
	delete(repo.db.exam.table, id)
	for asID, as := range repo.db.attender.table {
		if as.ExamID == id {
			repo.tx.saveAttender(asID, as)
			delete(repo.db.attender.table, asID)
		}
	}
	return nil
}

func (repo *examRepository) FindAttenderState(_ context.Context, id string) (exam.AttenderState, error) {
	repo.db.attender.RLock()
	defer repo.db.attender.RUnlock()

	if as, ok := repo.db.attender.table[id]; ok {
		return *as, nil
	}
	return exam.AttenderState{}, exam.ErrAttenderNotFound
}

func (repo *examRepository) FindStudentAttenderState(_ context.Context, examID, studentID string) (exam.AttenderState, error) {
	repo.db.attender.RLock()
	defer repo.db.attender.RUnlock()

	for _, as := range repo.db.attender.table {
		if as.ExamID == examID && as.StudentID == studentID {
			return *as, nil
		}
	}
	return exam.AttenderState{}, exam.ErrAttenderNotFound
}

func (repo *examRepository) FindOngoingAttenderStates(_ context.Context, examID string) ([]exam.AttenderState, error) {
	repo.db.attender.RLock()
	defer repo.db.attender.RUnlock()

	states := make([]exam.AttenderState, 0)
	for _, as := range repo.db.attender.table {
		if as.ExamID == examID && as.Progress == exam.ProgressOngoing {
			states = append(states, *as)
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ExamStartTime.Before(states[j].ExamStartTime) })
	return states, nil
}

func (repo *examRepository) CreateAttenderState(_ context.Context, as exam.AttenderState) (exam.AttenderState, error) {
	repo.db.exam.RLock()
	defer repo.db.exam.RUnlock()
	repo.db.attender.Lock()
	defer repo.db.attender.Unlock()

	if _, ok := repo.db.exam.table[as.ExamID]; !ok {
		return exam.AttenderState{}, exam.ErrNotFound
	}
	as.ID = uuid.New().String()
	repo.tx.saveAttender(as.ID, nil)
	repo.db.attender.table[as.ID] = &as
	return as, nil
}

func (repo *examRepository) UpdateAttenderState(_ context.Context, as exam.AttenderState) (exam.AttenderState, error) {
	repo.db.attender.Lock()
	defer repo.db.attender.Unlock()

	orig, ok := repo.db.attender.table[as.ID]
	if !ok {
		return exam.AttenderState{}, exam.ErrAttenderNotFound
	}
	if orig.Progress == exam.ProgressComplete {
		return exam.AttenderState{}, exam.ErrAlreadyComplete
	}
	// immutable fields
	as.ExamID = orig.ExamID
	as.StudentID = orig.StudentID
	as.ExamStartTime = orig.ExamStartTime

	repo.tx.saveAttender(as.ID, orig)
	repo.db.attender.table[as.ID] = &as
	return as, nil
}
