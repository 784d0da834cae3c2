package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-scout/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "redis":
		var opts []store.RedisOption
		if cfg.Store.ProfileTTLHours > 0 {
			opts = append(opts, store.WithProfileTTL(time.Duration(cfg.Store.ProfileTTLHours)*time.Hour))
		}
		return store.NewRedis(ctx, cfg.Store.RedisURL, opts...)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
