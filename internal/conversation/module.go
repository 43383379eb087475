package conversation

import (
	"context"

	"crmbot/platform/config"
	"crmbot/platform/logger"
)

// NewSessionStore picks redis when REDIS_URL is set, memory otherwise. The
// returned func releases the store.
func NewSessionStore(ctx context.Context, cfg config.SessionConfig, log *logger.Logger) (Store, func(), error) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not set, conversation sessions are kept in memory")
		mem := NewMemoryStore(cfg.GetSessionTTL())
		return mem, mem.Close, nil
	}
	rdb, err := NewRedisClient(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, nil, err
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	return NewRedisStore(rdb, cfg.GetSessionTTL()), func() { _ = rdb.Close() }, nil
}
