package repositories

import (
	"context"
	"time"

	"bemore/internal/core/ports"
	"bemore/internal/infrastructure/repositories/memory"
	redisrepo "bemore/internal/infrastructure/repositories/redis"
	"bemore/pkg/config"
	"bemore/pkg/distributed"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates Redis repositories when Redis is enabled and
// reachable, and memory ones otherwise.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	agentID     string
	sessionTTL  time.Duration
	logger      *zap.SugaredLogger
}

func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) *RepositoryFactory {
	factory := &RepositoryFactory{
		useRedis:   cfg.Redis.Enabled,
		agentID:    cfg.Agent.ID,
		sessionTTL: cfg.Session.ResumeTTL,
		logger:     logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(redisrepo.Options{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory
}

func (f *RepositoryFactory) UsingRedis() bool {
	return f.useRedis && f.redisClient != nil
}

// CreateSessionRepository returns the agent's active-session store.
func (f *RepositoryFactory) CreateSessionRepository() ports.SessionRepository {
	if f.UsingRedis() {
		return redisrepo.NewRedisSessionRepository(f.redisClient, f.agentID, f.sessionTTL)
	}
	return memory.NewMemorySessionRepository()
}

// CreateSessionStore returns the backend session table.
func (f *RepositoryFactory) CreateSessionStore() ports.SessionStore {
	if f.UsingRedis() {
		return redisrepo.NewRedisSessionStore(f.redisClient)
	}
	return memory.NewMemorySessionStore()
}

// InstanceLock returns the lease that keeps two agents with the same id from
// sharing one persisted session. It is nil for memory repositories.
func (f *RepositoryFactory) InstanceLock(ttl time.Duration) *distributed.Lock {
	if !f.UsingRedis() {
		return nil
	}
	return distributed.NewLock(f.redisClient, redisrepo.AgentLockKey(f.agentID), ttl)
}

func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck pings Redis when it is in use.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.UsingRedis() {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
