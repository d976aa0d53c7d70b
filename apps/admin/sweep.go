package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/exam"
	"github.com/trezcool/academia/core/schedule"
	"github.com/trezcool/academia/storage/database"
	sqlxdb "github.com/trezcool/academia/storage/database/sqlx"
)

func newExamRepository(db *sqlx.DB) exam.Repository {
	return sqlxdb.NewExamRepository(db)
}

// apiScheduler leaves exams that are not due yet to the API process: its own sweep arms their jobs.
type apiScheduler struct{}

func (apiScheduler) Register(string, time.Time, schedule.Func) {}
func (apiScheduler) Cancel(string)                             {}

// sweep finishes every ongoing exam whose end time has passed, e.g. while the API was down.
func (cli *commandLine) sweep(dryRun bool) error {
	if cli.conf.Database.Engine == database.EngineMemory {
		return errors.New("sweep needs a SQL database (database.engine is memory)")
	}
	db, err := cli.database()
	if err != nil {
		return err
	}
	repo := cli.newRepo(db)
	ctx := context.Background()

	if dryRun {
		exams, err := repo.FindOngoingExams(ctx)
		if err != nil {
			return errors.Wrap(err, "finding ongoing exams")
		}
		now := core.SystemClock.Now()
		for _, e := range exams {
			if !now.Before(e.EndTime) {
				_, _ = fmt.Fprintf(cli.out, "%s\t%s\tended %s\n", e.ID, e.Title, e.EndTime.Format(time.RFC3339))
			}
		}
		return nil
	}

	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	svc := exam.NewService(repo, apiScheduler{}, validate, cli.logger)

	res, err := svc.Sweep(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "finished: %d, not due yet: %d, failed: %d\n", res.Finished, res.Rescheduled, res.Failed)
	if res.Failed > 0 {
		return errors.Errorf("%d exam(s) could not be finished", res.Failed)
	}
	return nil
}
