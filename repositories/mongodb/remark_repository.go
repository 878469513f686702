package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/upb/freelance-marketplace/backend/models"
	"github.com/upb/freelance-marketplace/backend/repositories"
)

// remarkDocument is the stored shape of a deletion remark. The id is kept
// as the uuid string so ids are identical across stores.
type remarkDocument struct {
	ID            string                 `bson:"_id"`
	EntityType    string                 `bson:"entityType"`
	EntityID      string                 `bson:"entityId"`
	ProjectID     *string                `bson:"projectId,omitempty"`
	Reason        string                 `bson:"reason"`
	DeletedBy     string                 `bson:"deletedBy"`
	DeletedByRole *string                `bson:"deletedByRole,omitempty"`
	Metadata      map[string]interface{} `bson:"metadata"`
	CreatedAt     time.Time              `bson:"createdAt"`
	UpdatedAt     time.Time              `bson:"updatedAt"`
}

func toDocument(r *models.DeletionRemark) remarkDocument {
	return remarkDocument{
		ID:            r.ID.String(),
		EntityType:    string(r.EntityType),
		EntityID:      r.EntityID,
		ProjectID:     r.ProjectID,
		Reason:        r.Reason,
		DeletedBy:     r.DeletedBy,
		DeletedByRole: r.DeletedByRole,
		Metadata:      r.Metadata.ToMap(),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (d remarkDocument) toModel() (*models.DeletionRemark, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid remark id %q: %w", d.ID, err)
	}
	metadata, err := models.MetadataFromMap(d.Metadata)
	if err != nil {
		return nil, fmt.Errorf("remark %s: %w", d.ID, err)
	}
	return &models.DeletionRemark{
		ID:            id,
		EntityType:    models.EntityType(d.EntityType),
		EntityID:      d.EntityID,
		ProjectID:     d.ProjectID,
		Reason:        d.Reason,
		DeletedBy:     d.DeletedBy,
		DeletedByRole: d.DeletedByRole,
		Metadata:      metadata,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}, nil
}

// EnsureIndexes creates the listing indexes on the remark collection
func EnsureIndexes(ctx context.Context, coll *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "entityType", Value: 1}, {Key: "entityId", Value: 1}}},
		{Keys: bson.D{{Key: "projectId", Value: 1}}},
		{Keys: bson.D{{Key: "deletedBy", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create remark indexes: %w", err)
	}
	return nil
}

// DeletionRemarkRepository implements repositories.DeletionRemarkRepository
type DeletionRemarkRepository struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewDeletionRemarkRepository creates a repository over the given collection
func NewDeletionRemarkRepository(coll *mongo.Collection, logger *zap.Logger) repositories.DeletionRemarkRepository {
	return &DeletionRemarkRepository{
		coll:   coll,
		logger: logger,
	}
}

// Insert inserts a new deletion remark
func (r *DeletionRemarkRepository) Insert(ctx context.Context, remark *models.DeletionRemark) error {
	if _, err := r.coll.InsertOne(ctx, toDocument(remark)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to insert deletion remark: %w: duplicate id %s", repositories.ErrInvalidRecord, remark.ID)
		}
		return fmt.Errorf("failed to insert deletion remark: %w", err)
	}

	r.logger.Debug("deletion remark inserted",
		zap.String("id", remark.ID.String()),
		zap.String("entity_type", string(remark.EntityType)),
		zap.String("entity_id", remark.EntityID))
	return nil
}

// GetByID retrieves a deletion remark by ID
func (r *DeletionRemarkRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DeletionRemark, error) {
	var doc remarkDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("deletion remark %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get deletion remark: %w", err)
	}
	return doc.toModel()
}

// List retrieves deletion remarks matching the filter, newest first
func (r *DeletionRemarkRepository) List(ctx context.Context, filter repositories.RemarkFilter) ([]*models.DeletionRemark, error) {
	filter = filter.Normalize()

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(filter.Limit)).
		SetSkip(int64(filter.Offset))

	cursor, err := r.coll.Find(ctx, buildFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query deletion remarks: %w", err)
	}
	defer cursor.Close(ctx)

	remarks := make([]*models.DeletionRemark, 0, filter.Limit)
	for cursor.Next(ctx) {
		var doc remarkDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode deletion remark: %w", err)
		}
		remark, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		remarks = append(remarks, remark)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deletion remarks: %w", err)
	}

	return remarks, nil
}

// WithTx returns the receiver. Each remark is a single document, so inserts
// are already atomic without a session.
func (r *DeletionRemarkRepository) WithTx(tx repositories.Transaction) repositories.DeletionRemarkRepository {
	return r
}

func buildFilter(f repositories.RemarkFilter) bson.M {
	q := bson.M{}
	if f.EntityType != "" {
		q["entityType"] = string(f.EntityType)
	}
	if f.EntityID != "" {
		q["entityId"] = f.EntityID
	}
	if f.ProjectID != "" {
		q["projectId"] = f.ProjectID
	}
	if f.DeletedBy != "" {
		q["deletedBy"] = f.DeletedBy
	}
	return q
}
