package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/freelance-marketplace/backend/config"
	"github.com/upb/freelance-marketplace/backend/models"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return WrapDB(db, logger), nil
}

// WrapDB wraps an already opened pool, e.g. a sqlmock connection in tests
func WrapDB(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:     db,
		logger: logger,
	}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// remarksSchema expresses the DeletionRemark invariants as column constraints.
func remarksSchema() string {
	types := models.EntityTypes()
	quoted := make([]string, len(types))
	for i, t := range types {
		quoted[i] = "'" + string(t) + "'"
	}

	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS deletion_remarks (
			id UUID PRIMARY KEY,
			entity_type VARCHAR(32) NOT NULL CHECK (entity_type IN (%s)),
			entity_id VARCHAR(%d) NOT NULL CHECK (length(btrim(entity_id)) > 0),
			project_id VARCHAR(%d),
			reason VARCHAR(%d) NOT NULL CHECK (length(btrim(reason)) > 0),
			deleted_by VARCHAR(%d) NOT NULL CHECK (length(btrim(deleted_by)) > 0),
			deleted_by_role VARCHAR(%d),
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_deletion_remarks_entity ON deletion_remarks(entity_type, entity_id);
		CREATE INDEX IF NOT EXISTS idx_deletion_remarks_project_id ON deletion_remarks(project_id);
		CREATE INDEX IF NOT EXISTS idx_deletion_remarks_deleted_by ON deletion_remarks(deleted_by);
		CREATE INDEX IF NOT EXISTS idx_deletion_remarks_created_at ON deletion_remarks(created_at DESC);
	`,
		strings.Join(quoted, ", "),
		models.MaxIdentifierSize,
		models.MaxIdentifierSize,
		models.MaxReasonLength,
		models.MaxIdentifierSize,
		models.MaxRoleLength,
	)
}

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, remarksSchema()); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
