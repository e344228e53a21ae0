package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"

	echoapi "github.com/pogilapp/server/apps/api/echo"
	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/activity"
	"github.com/pogilapp/server/core/course"
	"github.com/pogilapp/server/core/user"
	appfs "github.com/pogilapp/server/fs"
	emailsvc "github.com/pogilapp/server/services/email"
	googlesvc "github.com/pogilapp/server/services/google"
	logsvc "github.com/pogilapp/server/services/logger"
	metricsvc "github.com/pogilapp/server/services/metrics"
	"github.com/pogilapp/server/storage/database"
	sqlxrepos "github.com/pogilapp/server/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	if err := conf.Validate(); err != nil {
		logger.Fatal(fmt.Sprintf("invalid configuration: %v", err), err)
	}

	ctx := context.Background()

	db, err := setUpDB(ctx, conf)
	if err != nil {
		dbLogger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	var content activity.ContentFetcher
	if svc, err := googlesvc.NewContentService(ctx, conf.Google); err != nil {
		logger.Warn(fmt.Sprintf("google content disabled: %v", err), err)
	} else {
		content = svc
	}

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db))
	courseSvc := course.NewService(sqlxrepos.NewCourseRepository(db), usrSvc)
	actSvc := activity.NewService(activity.Deps{
		Conf:      conf.Activity,
		Repo:      sqlxrepos.NewActivityRepository(db),
		Tx:        core.NewTxRunner(db),
		CourseSvc: courseSvc,
		Content:   content,
		MailSvc:   mailSvc,
		Logger:    logger,
		Clock:     clockwork.NewRealClock(),
		Metrics:   metricsvc.Recorder{},
	})

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : %s", conf))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	activity.InitValidators(validate, translator)

	if err = core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf.TestMode); err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}
	if err = user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswords); err != nil {
		logger.Fatal(fmt.Sprintf("loading common passwords: %v", err), err)
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:        conf,
		Logger:      logger,
		UserSvc:     usrSvc,
		CourseSvc:   courseSvc,
		ActivitySvc: actSvc,
		Validate:    validate,
		Translator:  translator,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Ping(ctx, db); err != nil {
		return nil, err
	}
	if err = database.Migrate(ctx, db); err != nil {
		return nil, err
	}
	return db, nil
}
