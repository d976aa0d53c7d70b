package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/exam"
	"github.com/trezcool/academia/storage/database"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf   *core.Config
	logger core.Logger
	out    io.Writer

	// mockable
	openDB   func(conf *core.Config) (*sqlx.DB, error)
	createDB func(conf *core.Config) error
	newRepo  func(db *sqlx.DB) exam.Repository

	db *sqlx.DB
}

func newCommandLine(conf *core.Config, logger core.Logger, out io.Writer) *commandLine {
	return &commandLine{
		conf:     conf,
		logger:   logger,
		out:      out,
		openDB:   func(conf *core.Config) (*sqlx.DB, error) { return database.Open(conf) },
		createDB: database.CreateIfNotExist,
		newRepo:  newExamRepository,
	}
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  createdb                    - create the app database user and database")
	_, _ = fmt.Fprintln(cli.out, "  migrate up                  - apply all pending migrations")
	_, _ = fmt.Fprintln(cli.out, "  migrate up-by-one           - apply the next pending migration")
	_, _ = fmt.Fprintln(cli.out, "  migrate up-to VERSION       - apply migrations up to VERSION")
	_, _ = fmt.Fprintln(cli.out, "  migrate down                - roll back the latest migration")
	_, _ = fmt.Fprintln(cli.out, "  migrate down-to VERSION     - roll back migrations down to VERSION")
	_, _ = fmt.Fprintln(cli.out, "  migrate redo                - roll back and re-apply the latest migration")
	_, _ = fmt.Fprintln(cli.out, "  sweep [-dry-run]            - finish every ongoing exam past its end time")
}

// database opens the app database on first use.
func (cli *commandLine) database() (*sqlx.DB, error) {
	if cli.db != nil {
		return cli.db, nil
	}
	db, err := cli.openDB(cli.conf)
	if err != nil {
		return nil, err
	}
	cli.db = db
	return db, nil
}

func (cli *commandLine) close() {
	if cli.db != nil {
		_ = cli.db.Close()
		cli.db = nil
	}
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	sweepCmd := flag.NewFlagSet("sweep", flag.ContinueOnError)
	sweepCmd.SetOutput(cli.out)
	sweepDryRun := sweepCmd.Bool("dry-run", false, "Only list the exams that would be finished.")

	switch args[1] {
	case "createdb":
		return cli.createDB(cli.conf)
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "sweep":
		if err := sweepCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.sweep(*sweepDryRun)
	default:
		cli.printUsage()
		return errHelp
	}
}

func parseVersion(command string, args []string) (int64, error) {
	if len(args) == 0 {
		return 0, errors.Errorf("%s must be of form: admin migrate %s VERSION", command, command)
	}
	version, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, errors.Errorf("version must be a number (got '%s')", args[0])
	}
	return version, nil
}
