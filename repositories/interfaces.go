package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/freelance-marketplace/backend/models"
)

var (
	// ErrNotFound is returned by stores when a record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrInvalidRecord is returned when the store rejects a record's values
	ErrInvalidRecord = errors.New("record violates store constraints")
)

// Listing bounds shared by every store
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// RemarkFilter narrows a remark listing. Empty fields match everything.
type RemarkFilter struct {
	EntityType models.EntityType
	EntityID   string
	ProjectID  string
	DeletedBy  string
	Limit      int
	Offset     int
}

// Normalize clamps Limit and Offset into the supported window
func (f RemarkFilter) Normalize() RemarkFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// DeletionRemarkRepository stores deletion remarks. Records are append-only,
// so the interface has no Update or Delete.
type DeletionRemarkRepository interface {
	// Insert persists a new remark
	Insert(ctx context.Context, remark *models.DeletionRemark) error

	// GetByID retrieves a remark by ID, returning ErrNotFound when missing
	GetByID(ctx context.Context, id uuid.UUID) (*models.DeletionRemark, error)

	// List retrieves remarks matching the filter, newest first
	List(ctx context.Context, filter RemarkFilter) ([]*models.DeletionRemark, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) DeletionRemarkRepository
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	DeletionRemarks DeletionRemarkRepository
}
