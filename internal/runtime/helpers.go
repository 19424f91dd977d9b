package runtime

import (
	"fmt"

	"github.com/datakettle/dp-composer/internal/config"
	"github.com/datakettle/dp-composer/internal/domain"
	"github.com/datakettle/dp-composer/internal/store"
	"github.com/datakettle/dp-composer/internal/store/file"
	"github.com/datakettle/dp-composer/internal/store/memory"
	"github.com/datakettle/dp-composer/internal/store/redis"
	"github.com/datakettle/dp-composer/internal/store/sqlite"
)

// OpenStore opens the configured state store backend. The CLI's session
// commands use it directly when no full composer is needed.
func OpenStore(cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Driver {
	case "file":
		return file.New(cfg.Path)
	case "sqlite":
		return sqlite.New(cfg.DSN)
	case "memory":
		return memory.New(), nil
	case "redis":
		return redis.New(redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	default:
		return nil, domain.ErrConfiguration(fmt.Sprintf("unknown storage driver %q", cfg.Driver))
	}
}
