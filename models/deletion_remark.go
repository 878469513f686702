package models

import (
	"time"

	"github.com/google/uuid"
)

// EntityType is the category of marketplace entity a remark refers to
type EntityType string

const (
	EntityTypeBid          EntityType = "bid"
	EntityTypeProject      EntityType = "project"
	EntityTypeUser         EntityType = "user"
	EntityTypeMilestone    EntityType = "milestone"
	EntityTypeConsultation EntityType = "consultation"
	EntityTypeOther        EntityType = "other"
)

// Field limits for deletion remarks
const (
	MaxReasonLength   = 500
	MaxIdentifierSize = 128
	MaxRoleLength     = 64
)

var entityTypes = []EntityType{
	EntityTypeBid,
	EntityTypeProject,
	EntityTypeUser,
	EntityTypeMilestone,
	EntityTypeConsultation,
	EntityTypeOther,
}

// EntityTypes returns the allowed entity types in declaration order
func EntityTypes() []EntityType {
	out := make([]EntityType, len(entityTypes))
	copy(out, entityTypes)
	return out
}

// IsValid reports whether t is one of the allowed entity types
func (t EntityType) IsValid() bool {
	for _, et := range entityTypes {
		if t == et {
			return true
		}
	}
	return false
}

func (t EntityType) String() string {
	return string(t)
}

// DeletionRemark records why and by whom a marketplace entity was removed.
// Remarks are append-only; nothing in the service mutates a stored remark.
type DeletionRemark struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	EntityType    EntityType `json:"entityType" db:"entity_type"`
	EntityID      string     `json:"entityId" db:"entity_id"`
	ProjectID     *string    `json:"projectId,omitempty" db:"project_id"`
	Reason        string     `json:"reason" db:"reason"`
	DeletedBy     string     `json:"deletedBy" db:"deleted_by"`
	DeletedByRole *string    `json:"deletedByRole,omitempty" db:"deleted_by_role"`
	Metadata      Metadata   `json:"metadata" db:"metadata"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time  `json:"updatedAt" db:"updated_at"`
}

// TableName returns the table name for the DeletionRemark model
func (DeletionRemark) TableName() string {
	return "deletion_remarks"
}

// NewDeletionRemark creates a remark with a fresh ID and matching timestamps
func NewDeletionRemark(entityType EntityType, entityID, reason, deletedBy string) *DeletionRemark {
	now := time.Now().UTC()
	return &DeletionRemark{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Reason:     reason,
		DeletedBy:  deletedBy,
		Metadata:   Metadata{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// WithProject sets the owning project
func (r *DeletionRemark) WithProject(projectID string) *DeletionRemark {
	r.ProjectID = &projectID
	return r
}

// WithRole sets the role the actor held at deletion time
func (r *DeletionRemark) WithRole(role string) *DeletionRemark {
	r.DeletedByRole = &role
	return r
}

// WithMetadata sets a single metadata entry
func (r *DeletionRemark) WithMetadata(key string, value MetadataValue) *DeletionRemark {
	if r.Metadata == nil {
		r.Metadata = Metadata{}
	}
	r.Metadata[key] = value
	return r
}
