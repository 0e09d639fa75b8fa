package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/bistro/db/migrations"
	"github.com/Additional-Code/bistro/internal/config"
	"github.com/Additional-Code/bistro/internal/database"
	repo "github.com/Additional-Code/bistro/internal/repository/order"
)

// Module provides the migrator to Fx.
var Module = fx.Provide(New)

// IndexEnsurer is implemented by document stores that manage their own indexes.
type IndexEnsurer interface {
	EnsureIndexes(ctx context.Context) ([]string, error)
}

// Migrator brings the configured backend's schema up to date. SQL drivers run
// the embedded goose migrations; mongodb creates collection indexes.
type Migrator struct {
	driver string
	db     *bun.DB
	dir    string
	store  repo.Store
	logger *zap.Logger
}

// New constructs a migrator for the configured driver.
func New(cfg config.Config, conns *database.Connections, store repo.Store, logger *zap.Logger) (*Migrator, error) {
	m := &Migrator{driver: cfg.Database.Driver, store: store, logger: logger}

	switch cfg.Database.Driver {
	case "mongodb", "memory":
		return m, nil
	}

	dialect, err := gooseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(dialect); err != nil {
		return nil, err
	}

	m.db = conns.Writer
	m.dir = cfg.Database.Driver
	return m, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	switch m.driver {
	case "memory":
		m.logger.Info("memory store needs no migrations")
		return nil
	case "mongodb":
		ensurer, ok := m.store.(IndexEnsurer)
		if !ok {
			return fmt.Errorf("store for driver %s cannot create indexes", m.driver)
		}
		names, err := ensurer.EnsureIndexes(ctx)
		if err != nil {
			return fmt.Errorf("ensure indexes: %w", err)
		}
		m.logger.Info("indexes ensured", zap.Strings("indexes", names))
		return nil
	}

	if err := goose.UpContext(ctx, m.db.DB, m.dir); err != nil {
		if isNoMigrationErr(err) {
			m.logger.Info("no migrations to apply")

			return nil
		}
		return err
	}

	m.logger.Info("migrations applied", zap.String("driver", m.driver))

	return nil
}

// Down rolls back migrations. Steps <=0 defaults to 1; all=true rolls everything back.
// Document stores keep their indexes.
func (m *Migrator) Down(ctx context.Context, steps int, all bool) error {
	if m.db == nil {
		m.logger.Info("nothing to rollback", zap.String("driver", m.driver))
		return nil
	}

	if all {
		if err := goose.DownToContext(ctx, m.db.DB, m.dir, 0); err != nil {
			if isNoMigrationErr(err) {
				m.logger.Info("no migrations to rollback")

				return nil
			}
			return err
		}
		m.logger.Info("migrations rolled back", zap.String("mode", "all"))

		return nil
	}

	if steps <= 0 {
		steps = 1
	}

	for i := 0; i < steps; i++ {
		if err := goose.DownContext(ctx, m.db.DB, m.dir); err != nil {
			if isNoMigrationErr(err) {
				m.logger.Info("no migrations to rollback")

				return nil
			}
			return err
		}
	}

	m.logger.Info("migrations rolled back", zap.Int("steps", steps))

	return nil
}

func gooseDialect(driver string) (string, error) {
	switch driver {
	case "postgres", "pg":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	default:
		return "", fmt.Errorf("unsupported goose dialect for driver %s", driver)
	}
}

func isNoMigrationErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, goose.ErrNoNextVersion) || errors.Is(err, goose.ErrNoMigrationFiles) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "no migrations")
}
