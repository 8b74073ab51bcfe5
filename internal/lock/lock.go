package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coincheck-trade-bot-go/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLeaseLost is the cancel cause of a Guard context whose lease went to another instance.
var ErrLeaseLost = errors.New("lease lost")

// Locker guards the bot against a second instance trading the same account.
type Locker interface {
	// Hold acquires or refreshes the lease. false means another instance owns it.
	Hold(ctx context.Context) (bool, error)
	// RefreshInterval is how often a holder must call Hold to keep the lease. 0 means never.
	RefreshInterval() time.Duration
	Release(ctx context.Context) error
}

// NopLocker always holds the lease.
type NopLocker struct{}

func (NopLocker) Hold(context.Context) (bool, error) { return true, nil }
func (NopLocker) RefreshInterval() time.Duration     { return 0 }
func (NopLocker) Release(context.Context) error      { return nil }

// refresh extends the TTL only while the key still carries our owner id.
var refresh = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a SETNX lease shared by every instance of the same bot.
type RedisLocker struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
	logger *zap.Logger
}

// NewLocker returns a RedisLocker when an address is configured, a NopLocker otherwise.
func NewLocker(cfg config.Redis, botName, owner string, logger *zap.Logger) Locker {
	if cfg.Addr == "" {
		return NopLocker{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisLocker(client, botName, owner, time.Duration(cfg.LockTTLSec)*time.Second, logger)
}

func NewRedisLocker(client *redis.Client, botName, owner string, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		key:    Key(botName),
		owner:  owner,
		ttl:    ttl,
		logger: logger.Named("lock"),
	}
}

// Key returns the redis key of the lease of a bot.
func Key(botName string) string {
	return "bot:" + botName + ":lock"
}

func (l *RedisLocker) Hold(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire %s: %w", l.key, err)
	}
	if ok {
		l.logger.Info("Acquired lease", zap.String("key", l.key), zap.String("owner", l.owner))
		return true, nil
	}

	n, err := refresh.Run(ctx, l.client, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to refresh %s: %w", l.key, err)
	}
	return n == 1, nil
}

// RefreshInterval is a third of the TTL, so two refreshes may fail before the key expires.
func (l *RedisLocker) RefreshInterval() time.Duration {
	return l.ttl / 3
}

func (l *RedisLocker) Release(ctx context.Context) error {
	if err := release.Run(ctx, l.client, []string{l.key}, l.owner).Err(); err != nil {
		return fmt.Errorf("failed to release %s: %w", l.key, err)
	}
	return l.client.Close()
}

// Guard keeps refreshing the lease of l while work runs under the returned context.
// The context is cancelled with ErrLeaseLost as soon as a refresh fails or another
// instance owns the lease. stop ends the refreshing and waits for it to return.
func Guard(ctx context.Context, l Locker, logger *zap.Logger) (guarded context.Context, stop func()) {
	guarded, cancel := context.WithCancelCause(ctx)
	interval := l.RefreshInterval()
	if interval <= 0 {
		return guarded, func() { cancel(nil) }
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-guarded.Done():
				return
			case <-ticker.C:
				held, err := l.Hold(guarded)
				if guarded.Err() != nil {
					return
				}
				if err != nil {
					logger.Error("Failed to refresh lease, cancelling work", zap.Error(err))
					cancel(fmt.Errorf("%w: %v", ErrLeaseLost, err))
					return
				}
				if !held {
					logger.Error("Lease taken by another instance, cancelling work")
					cancel(ErrLeaseLost)
					return
				}
			}
		}
	}()
	return guarded, func() {
		cancel(nil)
		<-done
	}
}
