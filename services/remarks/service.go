// Package remarks records and reads deletion remarks.
package remarks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/freelance-marketplace/backend/models"
	"github.com/upb/freelance-marketplace/backend/repositories"
	"github.com/upb/freelance-marketplace/backend/services"
	"github.com/upb/freelance-marketplace/backend/utils"
)

// MaxBatchSize caps CreateBatch
const MaxBatchSize = 100

// Notifier receives a cue after a remark is stored. Implementations must not
// block and must not fail the caller.
type Notifier interface {
	RemarkCreated(remark *models.DeletionRemark)
}

// CreateInput carries the caller-supplied fields of a new remark
type CreateInput struct {
	EntityType    models.EntityType `json:"entityType" validate:"required,entitytype"`
	EntityID      string            `json:"entityId" validate:"notblank,max=128"`
	ProjectID     *string           `json:"projectId,omitempty" validate:"omitempty,max=128"`
	Reason        string            `json:"reason" validate:"notblank,max=500"`
	DeletedBy     string            `json:"deletedBy" validate:"notblank,max=128"`
	DeletedByRole *string           `json:"deletedByRole,omitempty" validate:"omitempty,max=64"`
	Metadata      models.Metadata   `json:"metadata,omitempty"`
}

// ListInput narrows a remark listing
type ListInput struct {
	EntityType string `json:"entityType" validate:"omitempty,entitytype"`
	EntityID   string `json:"entityId" validate:"max=128"`
	ProjectID  string `json:"projectId" validate:"max=128"`
	DeletedBy  string `json:"deletedBy" validate:"max=128"`
	Limit      int    `json:"limit" validate:"gte=0,lte=200"`
	Offset     int    `json:"offset" validate:"gte=0"`
}

// ListResult is one page of remarks
type ListResult struct {
	Remarks []*models.DeletionRemark
	Limit   int
	Offset  int
}

// Service records deletion remarks. There is no update or delete.
type Service struct {
	repo      repositories.DeletionRemarkRepository
	txManager repositories.TransactionManager
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a remark service. notifier may be nil.
func NewService(repo repositories.DeletionRemarkRepository, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// WithTransactions makes CreateBatch atomic using txManager
func (s *Service) WithTransactions(txManager repositories.TransactionManager) *Service {
	s.txManager = txManager
	return s
}

// Create validates and stores a remark, returning it with server-assigned
// id and timestamps.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.DeletionRemark, error) {
	remark, err := s.prepare(input)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, remark); err != nil {
		return nil, insertError(err)
	}

	s.recorded(remark)
	return remark, nil
}

// CreateBatch stores several remarks at once, for example every bid and
// milestone removed along with a project. Either all remarks are stored or
// none are when a transaction manager is configured; without one the
// inserts run in order and stop at the first failure.
func (s *Service) CreateBatch(ctx context.Context, inputs []CreateInput) ([]*models.DeletionRemark, error) {
	if len(inputs) == 0 {
		return nil, services.NewValidationError("Validation failed", map[string]string{"remarks": "at least one remark is required"})
	}
	if len(inputs) > MaxBatchSize {
		return nil, services.NewValidationError("Validation failed", map[string]string{
			"remarks": fmt.Sprintf("at most %d remarks per batch", MaxBatchSize),
		})
	}

	prepared := make([]*models.DeletionRemark, 0, len(inputs))
	fields := map[string]string{}
	for i, input := range inputs {
		remark, err := s.prepare(input)
		if err != nil {
			details := services.GetErrorDetails(err)
			if len(details) == 0 {
				fields[fmt.Sprintf("remarks[%d]", i)] = "invalid remark"
				continue
			}
			for field, msg := range details {
				fields[fmt.Sprintf("remarks[%d].%s", i, field)] = fmt.Sprint(msg)
			}
			continue
		}
		prepared = append(prepared, remark)
	}
	if len(fields) > 0 {
		return nil, services.NewValidationError("Validation failed", fields)
	}

	insertAll := func(ctx context.Context, repo repositories.DeletionRemarkRepository) ([]*models.DeletionRemark, error) {
		for _, remark := range prepared {
			if err := repo.Insert(ctx, remark); err != nil {
				return nil, err
			}
		}
		return prepared, nil
	}

	var (
		stored []*models.DeletionRemark
		err    error
	)
	if s.txManager != nil {
		stored, err = services.RunInTransaction(ctx, s.txManager, func(ctx context.Context, tx repositories.Transaction) ([]*models.DeletionRemark, error) {
			return insertAll(ctx, s.repo.WithTx(tx))
		})
	} else {
		stored, err = insertAll(ctx, s.repo)
	}
	if err != nil {
		return nil, insertError(err)
	}

	for _, remark := range stored {
		s.recorded(remark)
	}
	return stored, nil
}

// prepare normalizes and validates input and builds the remark to insert
func (s *Service) prepare(input CreateInput) (*models.DeletionRemark, error) {
	input.normalize()

	if err := utils.ValidateStruct(&input); err != nil {
		return nil, toDomainValidation(err)
	}
	if err := input.Metadata.Validate(); err != nil {
		return nil, services.NewValidationError("Validation failed", map[string]string{"metadata": err.Error()})
	}

	// Millisecond precision round-trips through every store unchanged.
	now := s.now().UTC().Truncate(time.Millisecond)
	remark := models.NewDeletionRemark(input.EntityType, input.EntityID, input.Reason, input.DeletedBy)
	remark.ProjectID = input.ProjectID
	remark.DeletedByRole = input.DeletedByRole
	remark.CreatedAt = now
	remark.UpdatedAt = now
	if input.Metadata != nil {
		remark.Metadata = input.Metadata
	}
	return remark, nil
}

func (s *Service) recorded(remark *models.DeletionRemark) {
	s.logger.Info("deletion remark recorded",
		zap.String("id", remark.ID.String()),
		zap.String("entity_type", string(remark.EntityType)),
		zap.String("entity_id", remark.EntityID),
		zap.String("deleted_by", remark.DeletedBy))

	if s.notifier != nil {
		s.notifier.RemarkCreated(remark)
	}
}

func insertError(err error) error {
	if errors.Is(err, repositories.ErrInvalidRecord) {
		return services.NewDomainError(services.ErrorTypeValidation, "remark rejected by store", err)
	}
	return services.WrapInternal("failed to store deletion remark", err)
}

// Get returns a single remark by id
func (s *Service) Get(ctx context.Context, id string) (*models.DeletionRemark, error) {
	remarkID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, services.NewValidationError("Validation failed", map[string]string{"id": "id must be a valid UUID"})
	}

	remark, err := s.repo.GetByID(ctx, remarkID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("remark %s: %w", remarkID, services.ErrRemarkNotFound)
		}
		return nil, services.WrapInternal("failed to load deletion remark", err)
	}
	return remark, nil
}

// List returns remarks matching the input, newest first
func (s *Service) List(ctx context.Context, input ListInput) (*ListResult, error) {
	input.EntityType = strings.TrimSpace(input.EntityType)

	if err := utils.ValidateStruct(&input); err != nil {
		return nil, toDomainValidation(err)
	}

	filter := repositories.RemarkFilter{
		EntityType: models.EntityType(input.EntityType),
		EntityID:   input.EntityID,
		ProjectID:  input.ProjectID,
		DeletedBy:  input.DeletedBy,
		Limit:      input.Limit,
		Offset:     input.Offset,
	}.Normalize()

	remarks, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, services.WrapInternal("failed to list deletion remarks", err)
	}

	return &ListResult{
		Remarks: remarks,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// normalize trims reason only. Identifiers are stored exactly as submitted;
// whitespace-only optional fields count as absent.
func (in *CreateInput) normalize() {
	in.Reason = strings.TrimSpace(in.Reason)
	in.ProjectID = blankToNil(in.ProjectID)
	in.DeletedByRole = blankToNil(in.DeletedByRole)
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

func toDomainValidation(err error) error {
	fields := utils.GetValidationFields(err)
	if fields == nil {
		return services.NewDomainError(services.ErrorTypeValidation, "invalid input", err)
	}
	return services.NewValidationError("Validation failed", fields)
}
