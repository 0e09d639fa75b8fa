package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/bistro/internal/config"
)

// newMongo creates a MongoDB client. The driver dials lazily; the primary is pinged on start.
func newMongo(lc fx.Lifecycle, cfg config.Mongo, logger *zap.Logger) (*Connections, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(context.Background(), opts)
	if err != nil {
		return nil, fmt.Errorf("mongo client: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
			defer cancel()
			if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
				return fmt.Errorf("ping mongodb: %w", err)
			}
			logger.Info("database connected",
				zap.String("driver", "mongodb"),
				zap.String("database", cfg.Database),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := client.Disconnect(ctx); err != nil {
				return fmt.Errorf("disconnect mongodb: %w", err)
			}
			return nil
		},
	})

	return &Connections{Driver: "mongodb", Mongo: client.Database(cfg.Database)}, nil
}
