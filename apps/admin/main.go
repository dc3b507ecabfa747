package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/classroom"
	logsvc "github.com/fredmonaquezi/teacher-assistant-web-sub001/services/logger"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/storage/cache/redislock"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/storage/database"
	sqlxrepos "github.com/fredmonaquezi/teacher-assistant-web-sub001/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()
	ctx := context.Background()

	// set up DB
	errAndDie(database.CreateIfNotExist(ctx, conf))
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()

	// set up services
	appLogger := logsvc.NewRollbarLogger(logger, conf)
	var locker classroom.Locker = classroom.NewLocalLocker()
	if !conf.Redis.Disabled {
		client, err := redislock.NewClient(ctx, conf)
		errAndDie(err)
		defer client.Close()
		locker = redislock.New(client, conf.Redis.LockTTL, appLogger)
	}
	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	classroom.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		db:       db.DB,
		groupSvc: classroom.NewService(sqlxrepos.NewClassroomRepository(db), locker, appLogger, validate, translator, conf),
		out:      os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
