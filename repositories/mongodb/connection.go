// Package mongodb stores deletion remarks as documents in MongoDB.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/upb/freelance-marketplace/backend/config"
	"github.com/upb/freelance-marketplace/backend/models"
	"github.com/upb/freelance-marketplace/backend/repositories"
)

// Store owns the Mongo client and hands out repositories
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// Connect dials MongoDB and verifies the primary is reachable
func Connect(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*Store, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	logger.Info("mongo connection established", zap.String("database", cfg.Database))

	return &Store{
		client: client,
		db:     client.Database(cfg.Database),
		logger: logger,
	}, nil
}

// HealthCheck pings the primary
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo health check failed: %w", err)
	}
	return nil
}

// InitSchema creates the indexes the remark queries rely on
func (s *Store) InitSchema(ctx context.Context) error {
	if err := EnsureIndexes(ctx, s.remarks()); err != nil {
		return err
	}
	s.logger.Info("mongo indexes ensured", zap.String("collection", models.DeletionRemark{}.TableName()))
	return nil
}

// NewRepositories creates all repository instances
func (s *Store) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		DeletionRemarks: NewDeletionRemarkRepository(s.remarks(), s.logger),
	}
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	s.logger.Info("closing mongo connection")
	return s.client.Disconnect(ctx)
}

func (s *Store) remarks() *mongo.Collection {
	return s.db.Collection(models.DeletionRemark{}.TableName())
}
