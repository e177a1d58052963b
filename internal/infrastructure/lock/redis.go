package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"FuelPriceMonitor/internal/config"
	"FuelPriceMonitor/internal/ports"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a SET NX PX lock shared by every monitor instance.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

var _ ports.RunLock = (*Redis)(nil)

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg config.LockConfig) (*Redis, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}
	return newRedisWithClient(client, cfg.Key, cfg.TTL), nil
}

func newRedisWithClient(client *redis.Client, key string, ttl time.Duration) *Redis {
	if key == "" {
		key = "fuelmonitor:run-lock"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Redis{client: client, key: key, ttl: ttl}
}

// TryAcquire sets the key with a fresh token. The TTL bounds how long a
// crashed holder can block other instances.
func (r *Redis) TryAcquire(ctx context.Context) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", r.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.client, []string{r.key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release %s: %w", r.key, err)
		}
		return nil
	}
	return release, true, nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
