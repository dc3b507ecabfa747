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
	"go.uber.org/dig"

	echoapi "github.com/fredmonaquezi/teacher-assistant-web-sub001/apps/api/echo"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/classroom"
	appfs "github.com/fredmonaquezi/teacher-assistant-web-sub001/fs"
	logsvc "github.com/fredmonaquezi/teacher-assistant-web-sub001/services/logger"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/storage/cache/redislock"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/storage/database"
	inmemdb "github.com/fredmonaquezi/teacher-assistant-web-sub001/storage/database/inmem"
	sqlxrepos "github.com/fredmonaquezi/teacher-assistant-web-sub001/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Closer releases what the container opened (database, redis client).
type Closer func() error

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

// newRepository uses Postgres, or the in-memory store when database.engine is "memory".
func newRepository(conf *core.Config, loggerParam DBLoggerParam) (classroom.Repository, Closer) {
	if conf.Database.Engine == "memory" {
		db, _ := inmemdb.Open()
		loggerParam.Logger.Warn("using the in-memory database: data is lost on exit")
		return inmemdb.NewClassroomRepository(db), func() error { return nil }
	}

	setUp := func() (*sqlx.DB, error) {
		ctx := context.Background()
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Migrate(db.DB, appfs.FS, "up"); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return sqlxrepos.NewClassroomRepository(db), db.Close
}

// newLocker shares class locks through Redis unless redis.disabled is set.
func newLocker(conf *core.Config, logger core.Logger) (classroom.Locker, error) {
	if conf.Redis.Disabled {
		return classroom.NewLocalLocker(), nil
	}
	client, err := redislock.NewClient(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return redislock.New(client, conf.Redis.LockTTL, logger), nil
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	classroom.InitValidators(validate, translator)
	return validate
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepository))
	must(c.Provide(newLocker))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(classroom.NewService))
	must(c.Provide(func(svc *classroom.Service) echoapi.GroupService { return svc }))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
