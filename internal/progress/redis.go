package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/bookimport/internal/platform/logger"
)

const defaultChannel = "bookimport:progress"

// Publisher receives snapshots while a run is in flight.
type Publisher interface {
	Publish(ctx context.Context, s Snapshot) error
	Close() error
}

type RedisConfig struct {
	Addr    string
	Channel string
}

type redisPublisher struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewRedisPublisher connects to cfg.Addr and pings it before returning.
func NewRedisPublisher(log *logger.Logger, cfg RedisConfig) (Publisher, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	ch := strings.TrimSpace(cfg.Channel)
	if ch == "" {
		ch = defaultChannel
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisPublisher{
		log:     log.With("service", "RedisProgressPublisher"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (p *redisPublisher) Publish(ctx context.Context, s Snapshot) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("redis progress publisher not initialized")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, raw).Err()
}

func (p *redisPublisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}

// Report publishes a snapshot every interval until ctx is done, then one final snapshot
// marked Done. Publish failures are logged and never stop the run.
func Report(ctx context.Context, log *logger.Logger, t *Tracker, pub Publisher, interval time.Duration) {
	if pub == nil || t == nil {
		return
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	publish := func(pctx context.Context, s Snapshot) {
		pctx, cancel := context.WithTimeout(pctx, 2*time.Second)
		defer cancel()
		if err := pub.Publish(pctx, s); err != nil && log != nil {
			log.Warn("progress publish failed", "error", err)
		}
	}
	for {
		select {
		case <-ctx.Done():
			final := t.Snapshot()
			final.Done = true
			publish(context.WithoutCancel(ctx), final)
			return
		case <-ticker.C:
			publish(ctx, t.Snapshot())
		}
	}
}
