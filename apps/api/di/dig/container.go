package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/exam"
	"github.com/trezcool/academia/core/schedule"
	emailsvc "github.com/trezcool/academia/services/email"
	logsvc "github.com/trezcool/academia/services/logger"
	"github.com/trezcool/academia/storage/database"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	sqlxdb "github.com/trezcool/academia/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

// newDB sets up the SQL database. It returns a nil DB when the in-memory engine is configured.
func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	if conf.Database.Engine == database.EngineMemory {
		return nil
	}

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newExamRepository(db *sqlx.DB) exam.Repository {
	if db == nil {
		return inmemdb.NewExamRepository(inmemdb.Open())
	}
	return sqlxdb.NewExamRepository(db)
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	exam.InitValidators(validate, translator)
	return validate
}

func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newJobRegistry(conf *core.Config, logger core.Logger, reg *prometheus.Registry) *schedule.Registry {
	return schedule.NewRegistry(
		logger,
		schedule.WithWorkers(conf.Scheduler.Workers),
		schedule.WithQueueSize(conf.Scheduler.QueueSize),
		schedule.WithMetrics(schedule.NewMetrics(reg)),
	)
}

func newExamService(
	repo exam.Repository,
	jobs *schedule.Registry,
	validate *validator.Validate,
	logger core.Logger,
	mailSvc core.EmailService,
) *exam.Service {
	return exam.NewService(
		repo,
		jobs,
		validate,
		logger,
		exam.WithNotifier(exam.NewMailNotifier(mailSvc)),
	)
}

// Sweeper re-runs the recovery sweep on the configured schedule. Periodic is nil when no schedule is set.
type Sweeper struct {
	*schedule.Periodic
}

func newSweeper(conf *core.Config, svc *exam.Service, logger core.Logger) (Sweeper, error) {
	if conf.Scheduler.SweepSchedule == "" {
		return Sweeper{}, nil
	}
	sweep := func(ctx context.Context) {
		if _, err := svc.Sweep(ctx); err != nil {
			logger.Error(fmt.Sprintf("exam sweep: %v", err), err)
		}
	}
	p, err := schedule.NewPeriodic(conf.Scheduler.SweepSchedule, "exam sweep", sweep, logger)
	if err != nil {
		return Sweeper{}, errors.Wrap(err, "scheduling exam sweep")
	}
	return Sweeper{p}, nil
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newExamRepository))
	must(c.Provide(emailsvc.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(newMetricsRegistry))
	must(c.Provide(newJobRegistry))
	must(c.Provide(newExamService))
	must(c.Provide(newSweeper))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
