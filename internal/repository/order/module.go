package order

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/bistro/internal/config"
	"github.com/Additional-Code/bistro/internal/database"
)

// Module provides the order store and repository to Fx.
var Module = fx.Provide(
	NewStore,
	func(store Store, cfg config.Config) *Repository {
		return NewRepository(store, WithLocation(cfg.Orders.Location))
	},
)

// NewStore selects the Store backing the configured database driver.
func NewStore(cfg config.Config, conns *database.Connections, logger *zap.Logger) (Store, error) {
	switch conns.Driver {
	case "mongodb":
		mongoCfg := cfg.Database.Mongo
		logger.Info("order store ready",
			zap.String("driver", "mongodb"),
			zap.String("orders_collection", mongoCfg.OrdersCollection),
			zap.String("menu_collection", mongoCfg.MenuCollection),
		)
		return NewMongoStore(conns.Mongo, mongoCfg.OrdersCollection, mongoCfg.MenuCollection), nil
	case "postgres", "mysql":
		logger.Info("order store ready", zap.String("driver", conns.Driver))
		return NewSQLStore(conns.Writer, conns.Reader, conns.Driver), nil
	case "memory":
		logger.Info("order store ready", zap.String("driver", "memory"))
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported order store driver: %s", conns.Driver)
	}
}
