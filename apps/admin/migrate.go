package main

import (
	"context"
)

func (cli *commandLine) migrate(args []string) error {
	return migrateFunc(context.Background(), cli.db, args[0], args[1:]...)
}
