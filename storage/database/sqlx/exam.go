package sqlxdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/exam"
)

const (
	examColumns = `id, title, classroom_id, creator_id, creator_email, begin_time, end_time,
		time_limit_ns, pass_score, state, created_at, updated_at`
	attenderColumns = `id, exam_id, student_id, progress, score, exam_start_time, completed_at`
)

type (
	examRow struct {
		ID               string       `db:"id"`
		Title            string       `db:"title"`
		ClassroomID      string       `db:"classroom_id"`
		CreatorID        string       `db:"creator_id"`
		CreatorEmail     null.String  `db:"creator_email"`
		BeginTime        time.Time    `db:"begin_time"`
		EndTime          time.Time    `db:"end_time"`
		TimeLimitNs      int64        `db:"time_limit_ns"`
		PassScore        null.Float64 `db:"pass_score"`
		State            string       `db:"state"`
		CreatedAt        time.Time    `db:"created_at"`
		UpdatedAt        time.Time    `db:"updated_at"`
	}

	attenderRow struct {
		ID            string       `db:"id"`
		ExamID        string       `db:"exam_id"`
		StudentID     string       `db:"student_id"`
		Progress      string       `db:"progress"`
		Score         null.Float64 `db:"score"`
		ExamStartTime time.Time    `db:"exam_start_time"`
		CompletedAt   null.Time    `db:"completed_at"`
	}
)

func toExamRow(e exam.Exam) examRow {
	return examRow{
		ID:               e.ID,
		Title:            e.Title,
		ClassroomID:      e.ClassroomID,
		CreatorID:        e.CreatorID,
		CreatorEmail:     null.NewString(e.CreatorEmail, e.CreatorEmail != ""),
		BeginTime:        e.BeginTime.UTC(),
		EndTime:          e.EndTime.UTC(),
		TimeLimitNs:      int64(e.TimeLimit),
		PassScore:        null.Float64FromPtr(e.PassScore),
		State:            string(e.State),
		CreatedAt:        e.CreatedAt.UTC(),
		UpdatedAt:        e.UpdatedAt.UTC(),
	}
}

func (r examRow) toExam() exam.Exam {
	return exam.Exam{
		ID:           r.ID,
		Title:        r.Title,
		ClassroomID:  r.ClassroomID,
		CreatorID:    r.CreatorID,
		CreatorEmail: r.CreatorEmail.String,
		BeginTime:    r.BeginTime.UTC(),
		EndTime:      r.EndTime.UTC(),
		TimeLimit:    time.Duration(r.TimeLimitNs),
		PassScore:    r.PassScore.Ptr(),
		State:        exam.State(r.State),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func toAttenderRow(as exam.AttenderState) attenderRow {
	return attenderRow{
		ID:            as.ID,
		ExamID:        as.ExamID,
		StudentID:     as.StudentID,
		Progress:      string(as.Progress),
		Score:         null.Float64FromPtr(as.Score),
		ExamStartTime: as.ExamStartTime.UTC(),
		CompletedAt:   null.TimeFromPtr(as.CompletedAt),
	}
}

func (r attenderRow) toAttenderState() exam.AttenderState {
	as := exam.AttenderState{
		ID:            r.ID,
		ExamID:        r.ExamID,
		StudentID:     r.StudentID,
		Progress:      exam.Progress(r.Progress),
		Score:         r.Score.Ptr(),
		ExamStartTime: r.ExamStartTime.UTC(),
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time.UTC()
		as.CompletedAt = &t
	}
	return as
}

type examRepository struct {
	db   core.DB
	exec core.DBExecutor
	inTx bool
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db core.DB) exam.Repository {
	return &examRepository{db: db, exec: db}
}

func (repo *examRepository) Atomic(ctx context.Context, fn func(repo exam.Repository) error) error {
	if repo.inTx {
		return fn(repo)
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err := fn(&examRepository{db: repo.db, exec: tx, inTx: true}); err != nil {
		return rollbackErr(err, tx.Rollback())
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// rollbackErr returns err unless the rollback itself failed. A transaction that cannot be rolled
// back leaves the connection in an unknown state, so that failure asks for a shutdown.
// sql.ErrTxDone means database/sql already rolled back on context cancellation.
func rollbackErr(err, rbErr error) error {
	if rbErr == nil || errors.Cause(rbErr) == sql.ErrTxDone {
		return err
	}
	return core.NewShutdownError(rbErr, fmt.Sprintf("rolling back transaction after %q", err))
}

// trapNoRowsErr maps psql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (repo *examRepository) FindExam(ctx context.Context, id string) (exam.Exam, error) {
	if !validID(id) {
		return exam.Exam{}, exam.ErrNotFound
	}
	var row examRow
	q := `SELECT ` + examColumns + ` FROM exam WHERE id = $1`
	if err := repo.exec.GetContext(ctx, &row, q, id); err != nil {
		return exam.Exam{}, trapNoRowsErr(err, exam.ErrNotFound, "selecting exam")
	}
	return row.toExam(), nil
}

func (repo *examRepository) FindOngoingExams(ctx context.Context) ([]exam.Exam, error) {
	var rows []examRow
	q := `SELECT ` + examColumns + ` FROM exam WHERE state = $1 ORDER BY end_time`
	if err := repo.exec.SelectContext(ctx, &rows, q, exam.StateOngoing); err != nil {
		return nil, errors.Wrap(err, "selecting ongoing exams")
	}
	exams := make([]exam.Exam, 0, len(rows))
	for _, r := range rows {
		exams = append(exams, r.toExam())
	}
	return exams, nil
}

func (repo *examRepository) CreateExam(ctx context.Context, e exam.Exam) (exam.Exam, error) {
	e.ID = uuid.New().String()
	q := `INSERT INTO exam (` + examColumns + `) VALUES (
		:id, :title, :classroom_id, :creator_id, :creator_email, :begin_time, :end_time,
		:time_limit_ns, :pass_score, :state, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.exec, q, toExamRow(e)); err != nil {
		return exam.Exam{}, errors.Wrap(err, "inserting exam")
	}
	return repo.FindExam(ctx, e.ID)
}

func (repo *examRepository) UpdateExam(ctx context.Context, e exam.Exam) (exam.Exam, error) {
	if !validID(e.ID) {
		return exam.Exam{}, exam.ErrNotFound
	}
	r := toExamRow(e)
	q := `UPDATE exam SET
		title = $2, creator_email = $3, begin_time = $4, end_time = $5,
		time_limit_ns = $6, pass_score = $7, state = $8, updated_at = $9
		WHERE id = $1 AND state = 'ongoing'
		RETURNING ` + examColumns
	var row examRow
	err := repo.exec.GetContext(ctx, &row, q,
		r.ID, r.Title, r.CreatorEmail, r.BeginTime, r.EndTime,
		r.TimeLimitNs, r.PassScore, r.State, r.UpdatedAt)
	if err == nil {
		return row.toExam(), nil
	}
	if errors.Cause(err) != sql.ErrNoRows {
		return exam.Exam{}, errors.Wrap(err, "updating exam")
	}

	// either the exam is gone or it is no longer ongoing
	if _, err := repo.FindExam(ctx, e.ID); err != nil {
		return exam.Exam{}, err
	}
	return exam.Exam{}, exam.ErrStateConflict
}

func (repo *examRepository) DeleteExam(ctx context.Context, id string) error {
	if !validID(id) {
		return exam.ErrNotFound
	}
	// attender states are removed by ON DELETE CASCADE
	res, err := repo.exec.ExecContext(ctx, `DELETE FROM exam WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting exam")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "deleting exam")
	}
	if n == 0 {
		return exam.ErrNotFound
	}
	return nil
}

func (repo *examRepository) FindAttenderState(ctx context.Context, id string) (exam.AttenderState, error) {
	if !validID(id) {
		return exam.AttenderState{}, exam.ErrAttenderNotFound
	}
	var row attenderRow
	q := `SELECT ` + attenderColumns + ` FROM attender_state WHERE id = $1`
	if err := repo.exec.GetContext(ctx, &row, q, id); err != nil {
		return exam.AttenderState{}, trapNoRowsErr(err, exam.ErrAttenderNotFound, "selecting attender state")
	}
	return row.toAttenderState(), nil
}

func (repo *examRepository) FindStudentAttenderState(ctx context.Context, examID, studentID string) (exam.AttenderState, error) {
	if !validID(examID) {
		return exam.AttenderState{}, exam.ErrAttenderNotFound
	}
	var row attenderRow
	q := `SELECT ` + attenderColumns + ` FROM attender_state WHERE exam_id = $1 AND student_id = $2`
	if err := repo.exec.GetContext(ctx, &row, q, examID, studentID); err != nil {
		return exam.AttenderState{}, trapNoRowsErr(err, exam.ErrAttenderNotFound, "selecting student attender state")
	}
	return row.toAttenderState(), nil
}

func (repo *examRepository) FindOngoingAttenderStates(ctx context.Context, examID string) ([]exam.AttenderState, error) {
	if !validID(examID) {
		return []exam.AttenderState{}, nil
	}
	var rows []attenderRow
	q := `SELECT ` + attenderColumns + ` FROM attender_state
		WHERE exam_id = $1 AND progress = $2 ORDER BY exam_start_time`
	// FOR UPDATE keeps a concurrent submit out until the exam is finished
	if repo.inTx {
		q += ` FOR UPDATE`
	}
	if err := repo.exec.SelectContext(ctx, &rows, q, examID, exam.ProgressOngoing); err != nil {
		return nil, errors.Wrap(err, "selecting ongoing attender states")
	}
	states := make([]exam.AttenderState, 0, len(rows))
	for _, r := range rows {
		states = append(states, r.toAttenderState())
	}
	return states, nil
}

func (repo *examRepository) CreateAttenderState(ctx context.Context, as exam.AttenderState) (exam.AttenderState, error) {
	if !validID(as.ExamID) {
		return exam.AttenderState{}, exam.ErrNotFound
	}
	as.ID = uuid.New().String()
	q := `INSERT INTO attender_state (` + attenderColumns + `) VALUES (
		:id, :exam_id, :student_id, :progress, :score, :exam_start_time, :completed_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.exec, q, toAttenderRow(as)); err != nil {
		return exam.AttenderState{}, errors.Wrap(err, "inserting attender state")
	}
	return repo.FindAttenderState(ctx, as.ID)
}

func (repo *examRepository) UpdateAttenderState(ctx context.Context, as exam.AttenderState) (exam.AttenderState, error) {
	if !validID(as.ID) {
		return exam.AttenderState{}, exam.ErrAttenderNotFound
	}
	r := toAttenderRow(as)
	q := `UPDATE attender_state SET progress = $2, score = $3, completed_at = $4
		WHERE id = $1 AND progress = 'ongoing'
		RETURNING ` + attenderColumns
	var row attenderRow
	err := repo.exec.GetContext(ctx, &row, q, r.ID, r.Progress, r.Score, r.CompletedAt)
	if err == nil {
		return row.toAttenderState(), nil
	}
	if errors.Cause(err) != sql.ErrNoRows {
		return exam.AttenderState{}, errors.Wrap(err, "updating attender state")
	}

	if _, err := repo.FindAttenderState(ctx, as.ID); err != nil {
		return exam.AttenderState{}, err
	}
	return exam.AttenderState{}, exam.ErrAlreadyComplete
}
