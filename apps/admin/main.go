package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/user"
	appfs "github.com/pogilapp/server/fs"
	logsvc "github.com/pogilapp/server/services/logger"
	"github.com/pogilapp/server/storage/database"
	sqlxrepos "github.com/pogilapp/server/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	if err := conf.Validate(); err != nil {
		logger.Fatal(fmt.Sprintf("invalid configuration: %v", err), err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	if err := user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswords); err != nil {
		logger.Fatal(fmt.Sprintf("loading common passwords: %v", err), err)
	}

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	if needsDB(os.Args) {
		if err = database.Ping(context.Background(), db); err != nil {
			logger.Fatal(fmt.Sprintf("connecting to database: %v", err), err)
		}
	}

	// start CLI
	cli := commandLine{
		db:         db,
		usrSvc:     user.NewService(sqlxrepos.NewUserRepository(db)),
		validate:   validate,
		translator: translator,
		logger:     logger,
		out:        os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %s", err), err)
		}
		os.Exit(1)
	}
}
