package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/FrunkQ/dynamic-map-renderer/pkg/assets"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/config"

	"github.com/go-redis/redis/v9"
	"github.com/rs/zerolog/log"
)

// openStore returns the blob store map configs are kept in and a function
// that releases it.
func openStore(ctx context.Context, settings config.StoreConfig, configsDir string) (assets.Store, func(), error) {
	switch settings.Backend {
	case config.StoreBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     settings.Redis.Address,
			Password: settings.Redis.Password,
			DB:       settings.Redis.DB,
		})

		err := client.Ping(ctx).Err()
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("could not reach redis at %s: %w", settings.Redis.Address, err)
		}

		log.Info().Str("address", settings.Redis.Address).Msg("storing map configs in redis")
		return assets.NewRedisStore(client, settings.Redis.Expiry), func() { client.Close() }, nil
	case config.StoreBackendSQLite:
		err := os.MkdirAll(filepath.Dir(settings.SQLite.Path), 0755)
		if err != nil {
			return nil, nil, err
		}

		db, err := assets.InitDB(settings.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open database %s: %w", settings.SQLite.Path, err)
		}

		log.Info().Str("path", settings.SQLite.Path).Msg("storing map configs in sqlite")
		return assets.NewSQLStore(db), func() {
			sqlDB, err := db.DB()
			if err == nil {
				sqlDB.Close()
			}
		}, nil
	}

	err := os.MkdirAll(configsDir, 0755)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to make config dir %s: %w", configsDir, err)
	}

	log.Info().Str("dir", configsDir).Msg("storing map configs on disk")
	return assets.FSStore(configsDir), func() {}, nil
}
