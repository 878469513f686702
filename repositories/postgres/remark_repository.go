package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/freelance-marketplace/backend/models"
	"github.com/upb/freelance-marketplace/backend/repositories"
	"go.uber.org/zap"
)

const remarkColumns = `id, entity_type, entity_id, project_id, reason, deleted_by,
		       deleted_by_role, metadata, created_at, updated_at`

// Postgres error codes the repository translates
const (
	pqStringTooLong   = "22001"
	pqNotNullViolated = "23502"
	pqCheckViolated   = "23514"
)

// DeletionRemarkRepository implements repositories.DeletionRemarkRepository
type DeletionRemarkRepository struct {
	db     *DB
	tx     repositories.Transaction
	logger *zap.Logger
}

// NewDeletionRemarkRepository creates a new deletion remark repository
func NewDeletionRemarkRepository(db *DB, logger *zap.Logger) repositories.DeletionRemarkRepository {
	return &DeletionRemarkRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new deletion remark
func (r *DeletionRemarkRepository) Insert(ctx context.Context, remark *models.DeletionRemark) error {
	query := `
		INSERT INTO deletion_remarks (
			id, entity_type, entity_id, project_id, reason, deleted_by,
			deleted_by_role, metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	executor := GetExecutor(ctx, r.db, r.tx)
	_, err := executor.ExecContext(ctx, query,
		remark.ID,
		string(remark.EntityType),
		remark.EntityID,
		remark.ProjectID,
		remark.Reason,
		remark.DeletedBy,
		remark.DeletedByRole,
		remark.Metadata,
		remark.CreatedAt,
		remark.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert deletion remark: %w", translateError(err))
	}

	r.logger.Debug("deletion remark inserted",
		zap.String("id", remark.ID.String()),
		zap.String("entity_type", string(remark.EntityType)),
		zap.String("entity_id", remark.EntityID))
	return nil
}

// GetByID retrieves a deletion remark by ID
func (r *DeletionRemarkRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DeletionRemark, error) {
	query := `
		SELECT ` + remarkColumns + `
		FROM deletion_remarks
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db, r.tx)
	remark, err := scanRemark(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("deletion remark %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get deletion remark: %w", err)
	}

	return remark, nil
}

// List retrieves deletion remarks matching the filter, newest first
func (r *DeletionRemarkRepository) List(ctx context.Context, filter repositories.RemarkFilter) ([]*models.DeletionRemark, error) {
	filter = filter.Normalize()

	var (
		conditions []string
		args       []interface{}
	)
	add := func(column string, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("entity_type", string(filter.EntityType))
	add("entity_id", filter.EntityID)
	add("project_id", filter.ProjectID)
	add("deleted_by", filter.DeletedBy)

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(remarkColumns)
	sb.WriteString(" FROM deletion_remarks")
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}
	args = append(args, filter.Limit, filter.Offset)
	fmt.Fprintf(&sb, " ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	executor := GetExecutor(ctx, r.db, r.tx)
	rows, err := executor.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deletion remarks: %w", err)
	}
	defer rows.Close()

	remarks := make([]*models.DeletionRemark, 0, filter.Limit)
	for rows.Next() {
		remark, err := scanRemark(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deletion remark: %w", err)
		}
		remarks = append(remarks, remark)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deletion remark rows: %w", err)
	}

	return remarks, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *DeletionRemarkRepository) WithTx(tx repositories.Transaction) repositories.DeletionRemarkRepository {
	return &DeletionRemarkRepository{
		db:     r.db,
		tx:     tx,
		logger: r.logger,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRemark(row rowScanner) (*models.DeletionRemark, error) {
	remark := &models.DeletionRemark{}
	var entityType string
	err := row.Scan(
		&remark.ID,
		&entityType,
		&remark.EntityID,
		&remark.ProjectID,
		&remark.Reason,
		&remark.DeletedBy,
		&remark.DeletedByRole,
		&remark.Metadata,
		&remark.CreatedAt,
		&remark.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	remark.EntityType = models.EntityType(entityType)
	remark.CreatedAt = remark.CreatedAt.UTC()
	remark.UpdatedAt = remark.UpdatedAt.UTC()
	return remark, nil
}

// translateError maps constraint failures onto repositories.ErrInvalidRecord
func translateError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqStringTooLong, pqNotNullViolated, pqCheckViolated:
			return fmt.Errorf("%w: %s", repositories.ErrInvalidRecord, pqErr.Message)
		}
	}
	return err
}
