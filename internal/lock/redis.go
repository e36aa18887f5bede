package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"

	"github.com/banking/audit-risk-service/internal/config"
	"github.com/banking/audit-risk-service/internal/domain"
	"github.com/banking/audit-risk-service/internal/pkg/logger"
)

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Option configures a Redis locker
type Option func(*Redis)

// WithTTL sets how long a lock survives a crashed holder
func WithTTL(ttl time.Duration) Option {
	return func(r *Redis) { r.ttl = ttl }
}

// WithRetryDelay sets the pause between acquisition attempts
func WithRetryDelay(d time.Duration) Option {
	return func(r *Redis) { r.retryDelay = d }
}

// WithRetryCount sets how many attempts are made before giving up
func WithRetryCount(n int) Option {
	return func(r *Redis) { r.retryCount = n }
}

// WithWatchdogInterval sets how often a held lock's TTL is renewed.
// Zero disables renewal, leaving the TTL as a hard bound on a transition.
func WithWatchdogInterval(d time.Duration) Option {
	return func(r *Redis) { r.watchdog = d }
}

// WithPrefix sets the key prefix
func WithPrefix(prefix string) Option {
	return func(r *Redis) { r.prefix = prefix }
}

// Redis is a per-area lock shared by every replica talking to the same Redis
type Redis struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	retryDelay time.Duration
	retryCount int
	watchdog   time.Duration
	log        *logger.Logger
}

// NewRedis creates a Redis-backed locker
func NewRedis(client redis.UniversalClient, log *logger.Logger, opts ...Option) *Redis {
	r := &Redis{
		client:     client,
		prefix:     "audit-risk:lock:area",
		ttl:        30 * time.Second,
		retryDelay: 50 * time.Millisecond,
		retryCount: 100,
		watchdog:   -1,
		log:        log.Named("redis_lock"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.watchdog < 0 {
		r.watchdog = r.ttl / 3
	}
	return r
}

// NewRedisFromConfig connects to Redis and builds a locker from configuration
func NewRedisFromConfig(cfg *config.RedisConfig, log *logger.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, goerr.Wrap(err, "failed to connect to redis", goerr.V("host", cfg.Host), goerr.V("port", cfg.Port))
	}

	return NewRedis(client, log,
		WithPrefix(cfg.LockPrefix),
		WithTTL(cfg.LockTTL),
		WithRetryDelay(cfg.LockRetryDelay),
		WithRetryCount(cfg.LockRetryCount),
		WithWatchdogInterval(cfg.LockWatchdogInterval),
	), nil
}

// Close releases the underlying client
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(areaID uuid.UUID) string {
	return r.prefix + ":" + areaID.String()
}

// Lock retries SetNX until the lock is held, the retry budget is spent or ctx is done
func (r *Redis) Lock(ctx context.Context, areaID uuid.UUID) (Unlock, error) {
	key := r.key(areaID)
	token := uuid.NewString()
	started := time.Now()

	for attempt := 0; attempt < r.retryCount; attempt++ {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, goerr.Wrap(err, "failed to set area lock", goerr.V("area_id", areaID))
		}
		if ok {
			if waited := time.Since(started); attempt > 0 && waited > r.ttl/4 {
				r.log.LockContention(areaID.String(), waited, r.ttl/4)
			}
			stop := r.startWatchdog(areaID, key, token)
			return r.unlocker(areaID, key, token, stop), nil
		}

		select {
		case <-ctx.Done():
			return nil, goerr.Wrap(ctx.Err(), "lock wait cancelled", goerr.V("area_id", areaID))
		case <-time.After(r.retryDelay):
		}
	}

	return nil, goerr.Wrap(domain.ErrConflict, "area is locked by another writer",
		goerr.V("area_id", areaID), goerr.V("attempts", r.retryCount))
}

// startWatchdog renews the lock's TTL until the returned stop func is called
// or the lock turns out to belong to someone else
func (r *Redis) startWatchdog(areaID uuid.UUID, key, token string) func() {
	if r.watchdog <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	log := r.log.WithArea(areaID.String())

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.watchdog)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				res, err := extendScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int64()
				if err != nil {
					if ctx.Err() == nil {
						log.Error("Watchdog failed to extend area lock", logger.ErrorField(err))
					}
					return
				}
				if res == 0 {
					log.Warn("Watchdog lost area lock")
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (r *Redis) unlocker(areaID uuid.UUID, key, token string, stopWatchdog func()) Unlock {
	var once sync.Once
	return func() {
		once.Do(func() {
			stopWatchdog()

			// the caller's context may already be cancelled
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			log := r.log.WithArea(areaID.String())
			res, err := unlockScript.Run(ctx, r.client, []string{key}, token).Int64()
			if err != nil {
				log.Error("failed to release area lock", logger.ErrorField(err))
				return
			}
			if res == 0 {
				log.Warn("area lock expired before release")
			}
		})
	}
}
