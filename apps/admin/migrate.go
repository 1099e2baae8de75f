package main

import (
	"github.com/pkg/errors"

	"github.com/trezcool/wellbeing/storage/database"
)

var runMigrationsFunc = database.RunMigrations // mockable

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errors.New("migrate needs a database connection")
	}
	return runMigrationsFunc(cli.db, args[0], args[1:]...)
}
