package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/materialmap/internal/catalog/config"
	"github.com/yungbote/materialmap/internal/catalog/netstate"
	"github.com/yungbote/materialmap/internal/catalog/persist"
	"github.com/yungbote/materialmap/internal/platform/redisclient"
)

// catalogStore backs both the persistent worker and the version store.
type catalogStore interface {
	persist.Store
	netstate.VersionStore
}

func (a *App) openStore(ctx context.Context) (catalogStore, error) {
	switch a.Cfg.Persist.Driver {
	case config.PersistSQLite, config.PersistPostgres:
		db, err := persist.OpenSQL(a.Cfg.Persist.Driver, a.Cfg.Persist.DSN)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", a.Cfg.Persist.Driver, err)
		}
		return persist.NewSQLStore(db)
	case config.PersistRedis:
		rdb, err := openRedis(ctx, a.Cfg.Redis.Addr)
		if err != nil {
			return nil, err
		}
		a.rdb = rdb
		return persist.NewRedisStore(rdb, a.Cfg.Redis.Prefix, a.Cfg.Persist.TTL.Duration)
	default:
		return persist.NewMemoryStore(), nil
	}
}

func openRedis(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb, err := redisclient.Open(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}
	return rdb, nil
}
