package main

import (
	"database/sql"
	"io/fs"

	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	appfs "github.com/trezcool/academia/fs"
)

var migrationsDir = "migrations"

// mockable
var (
	gooseUp      = goose.Up
	gooseUpByOne = goose.UpByOne
	gooseUpTo    = goose.UpTo
	gooseDown    = goose.Down
	gooseDownTo  = goose.DownTo
	gooseRedo    = goose.Redo
)

func (cli *commandLine) migrate(args []string) error {
	command := args[0]

	var run func(db *sql.DB, fsys fs.FS, dir string) error
	switch command {
	case "up":
		run = gooseUp
	case "up-by-one":
		run = gooseUpByOne
	case "down":
		run = gooseDown
	case "redo":
		run = gooseRedo
	case "up-to", "down-to":
		version, err := parseVersion(command, args[1:])
		if err != nil {
			return err
		}
		run = func(db *sql.DB, fsys fs.FS, dir string) error {
			if command == "up-to" {
				return gooseUpTo(db, fsys, dir, version)
			}
			return gooseDownTo(db, fsys, dir, version)
		}
	default:
		return errors.Errorf("%q: no such command", command)
	}

	db, err := cli.database()
	if err != nil {
		return err
	}
	return run(db.DB, appfs.FS, migrationsDir)
}
