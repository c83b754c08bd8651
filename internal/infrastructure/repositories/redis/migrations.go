package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bemore/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	schemaVersionKey     = keyPrefix + "schema:version"
	currentSchemaVersion = 2
)

type Migration struct {
	Version int
	Up      func(ctx context.Context, client *redis.Client) error
}

// Migrate runs every migration newer than the stored schema version.
func Migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
	currentVersion, err := getSchemaVersion(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if currentVersion >= currentSchemaVersion {
		if logger != nil {
			logger.Debugw("schema is up to date",
				"current_version", currentVersion,
				"target_version", currentSchemaVersion,
			)
		}
		return nil
	}

	for _, migration := range getMigrations() {
		if migration.Version <= currentVersion {
			continue
		}
		if logger != nil {
			logger.Infow("running migration", "version", migration.Version)
		}
		if err := migration.Up(ctx, client); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if err := setSchemaVersion(ctx, client, migration.Version); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	if logger != nil {
		logger.Infow("all migrations completed", "final_version", currentSchemaVersion)
	}
	return nil
}

func getSchemaVersion(ctx context.Context, client *redis.Client) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func setSchemaVersion(ctx context.Context, client *redis.Client, version int) error {
	return client.Set(ctx, schemaVersionKey, version, 0).Err()
}

func getMigrations() []Migration {
	return []Migration{
		{
			// 1: sessions were stored without an index; rebuild it from the session keys
			Version: 1,
			Up: func(ctx context.Context, client *redis.Client) error {
				iter := client.Scan(ctx, 0, keyPrefix+"session:sess_*", 100).Iterator()
				for iter.Next(ctx) {
					key := iter.Val()
					if strings.HasSuffix(key, ":feedback") {
						continue
					}
					id := strings.TrimPrefix(key, keyPrefix+"session:")
					if err := client.SAdd(ctx, activeSessionsKey(), id).Err(); err != nil {
						return err
					}
				}
				return iter.Err()
			},
		},
		{
			// 2: drop ended sessions from the index
			Version: 2,
			Up: func(ctx context.Context, client *redis.Client) error {
				store := &RedisSessionStore{client: client, prefix: keyPrefix + "session:"}
				members, err := client.SMembers(ctx, activeSessionsKey()).Result()
				if err != nil {
					return err
				}
				for _, id := range members {
					session, err := store.GetByID(ctx, domain.SessionID(id))
					if err != nil {
						if err := client.SRem(ctx, activeSessionsKey(), id).Err(); err != nil {
							return err
						}
						continue
					}
					if err := store.index(ctx, session); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
