// Package redislock locks classes across API replicas with Redis.
package redislock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/classroom"
)

const keyPrefix = "grouping:lock:"

// releaseScript deletes the lock only if it still holds our token: an expired lock
// may have been taken by another run since.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    core.Logger
}

var _ classroom.Locker = (*Locker)(nil)

// NewClient connects to the Redis server of `conf` and checks it answers.
func NewClient(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

// New returns a Locker whose locks expire after ttl if never released.
func New(client redis.UniversalClient, ttl time.Duration, logger core.Logger) *Locker {
	vala.BeginValidation().Validate(
		vala.IsNotNil(client, "client"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{client: client, ttl: ttl, log: logger}
}

func Key(classID string) string {
	return keyPrefix + classID
}

func (l *Locker) Lock(ctx context.Context, classID string) (func(), error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, Key(classID), token, l.ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "acquiring class lock")
	}
	if !ok {
		return nil, classroom.ErrGenerationInProgress
	}

	return func() {
		// the caller's context may be done by now
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{Key(classID)}, token).Err(); err != nil {
			l.log.Error("releasing class lock", err, map[string]interface{}{"classId": classID})
		}
	}, nil
}
