package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/upb/freelance-marketplace/backend/middleware"
	"github.com/upb/freelance-marketplace/backend/models"
	"github.com/upb/freelance-marketplace/backend/services/remarks"
	"github.com/upb/freelance-marketplace/backend/utils"
	"go.uber.org/zap"
)

// maxRemarkBodyBytes bounds create payloads, batches included
const maxRemarkBodyBytes = 1 << 20

// errForeignAttribution is returned when a non-admin names another actor or role
var errForeignAttribution = errors.New("only admins may record a deletion on behalf of another user or role")

// CreateRemarkRequest represents a request to record a deletion remark
type CreateRemarkRequest struct {
	EntityType    string          `json:"entityType"`
	EntityID      string          `json:"entityId"`
	ProjectID     *string         `json:"projectId,omitempty"`
	Reason        string          `json:"reason"`
	DeletedBy     string          `json:"deletedBy,omitempty"`
	DeletedByRole *string         `json:"deletedByRole,omitempty"`
	Metadata      models.Metadata `json:"metadata,omitempty"`
}

// CreateRemarkBatchRequest records several remarks in one call
type CreateRemarkBatchRequest struct {
	Remarks []CreateRemarkRequest `json:"remarks"`
}

// RemarkResponse represents a deletion remark in API responses
type RemarkResponse struct {
	ID            string          `json:"id"`
	EntityType    string          `json:"entityType"`
	EntityID      string          `json:"entityId"`
	ProjectID     *string         `json:"projectId,omitempty"`
	Reason        string          `json:"reason"`
	DeletedBy     string          `json:"deletedBy"`
	DeletedByRole *string         `json:"deletedByRole,omitempty"`
	Metadata      models.Metadata `json:"metadata"`
	CreatedAt     string          `json:"createdAt"`
	UpdatedAt     string          `json:"updatedAt"`
}

// RemarkService defines the remark operations the handler needs
type RemarkService interface {
	Create(ctx context.Context, input remarks.CreateInput) (*models.DeletionRemark, error)
	CreateBatch(ctx context.Context, inputs []remarks.CreateInput) ([]*models.DeletionRemark, error)
	Get(ctx context.Context, id string) (*models.DeletionRemark, error)
	List(ctx context.Context, input remarks.ListInput) (*remarks.ListResult, error)
}

// QuotaCharger charges a number of actions against the caller's window,
// writing the rejection itself when they do not fit
type QuotaCharger interface {
	Charge(w http.ResponseWriter, r *http.Request, scope string, n int) bool
}

// RemarkHandler handles deletion remark HTTP requests
type RemarkHandler struct {
	service    RemarkService
	quota      QuotaCharger
	quotaScope string
	logger     *zap.Logger
}

// NewRemarkHandler creates a new RemarkHandler
func NewRemarkHandler(service RemarkService, logger *zap.Logger) *RemarkHandler {
	return &RemarkHandler{
		service: service,
		logger:  logger,
	}
}

// WithQuota charges batch creates one action per remark in scope
func (h *RemarkHandler) WithQuota(quota QuotaCharger, scope string) *RemarkHandler {
	h.quota = quota
	h.quotaScope = scope
	return h
}

// HandleCreate handles POST /api/v1/deletion-remarks
func (h *RemarkHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	claims := middleware.GetClaimsFromContext(ctx)
	if claims == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req CreateRemarkRequest
	if !h.decode(w, r, &req) {
		return
	}

	input, err := req.toInput(claims)
	if err != nil {
		h.logger.Warn("rejected deletion remark attribution",
			zap.String("request_id", requestID),
			zap.String("sub", claims.Sub),
			zap.String("deleted_by", req.DeletedBy))
		_ = utils.WriteForbidden(w, err.Error())
		return
	}

	remark, err := h.service.Create(ctx, input)
	if err != nil {
		h.logger.Warn("failed to create deletion remark",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, remarkToResponse(remark))
}

// HandleCreateBatch handles POST /api/v1/deletion-remarks/batch
func (h *RemarkHandler) HandleCreateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	claims := middleware.GetClaimsFromContext(ctx)
	if claims == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req CreateRemarkBatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	inputs := make([]remarks.CreateInput, 0, len(req.Remarks))
	for i, item := range req.Remarks {
		input, err := item.toInput(claims)
		if err != nil {
			h.logger.Warn("rejected deletion remark attribution",
				zap.String("request_id", requestID),
				zap.String("sub", claims.Sub),
				zap.Int("index", i))
			_ = utils.WriteForbidden(w, err.Error())
			return
		}
		inputs = append(inputs, input)
	}

	if h.quota != nil && !h.quota.Charge(w, r, h.quotaScope, len(inputs)) {
		return
	}

	stored, err := h.service.CreateBatch(ctx, inputs)
	if err != nil {
		h.logger.Warn("failed to create deletion remark batch",
			zap.String("request_id", requestID),
			zap.Int("size", len(inputs)),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	items := make([]RemarkResponse, 0, len(stored))
	for _, remark := range stored {
		items = append(items, remarkToResponse(remark))
	}
	_ = utils.WriteCreated(w, items)
}

// HandleGet handles GET /api/v1/deletion-remarks/{id}
func (h *RemarkHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	remark, err := h.service.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, remarkToResponse(remark))
}

// HandleList handles GET /api/v1/deletion-remarks
func (h *RemarkHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	query := r.URL.Query()

	input := remarks.ListInput{
		EntityType: query.Get("entityType"),
		EntityID:   query.Get("entityId"),
		ProjectID:  query.Get("projectId"),
		DeletedBy:  query.Get("deletedBy"),
	}

	badParams := map[string]interface{}{}
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badParams["limit"] = "limit must be an integer"
		}
		input.Limit = n
	}
	if v := query.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badParams["offset"] = "offset must be an integer"
		}
		input.Offset = n
	}
	if len(badParams) > 0 {
		_ = utils.WriteBadRequest(w, "Validation failed", badParams)
		return
	}

	h.logger.Debug("listing deletion remarks",
		zap.String("request_id", requestID),
		zap.String("entity_type", input.EntityType),
		zap.String("entity_id", input.EntityID))

	result, err := h.service.List(ctx, input)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	items := make([]RemarkResponse, 0, len(result.Remarks))
	for _, remark := range result.Remarks {
		items = append(items, remarkToResponse(remark))
	}

	_ = utils.WriteList(w, items, utils.PageMeta{
		Limit:  result.Limit,
		Offset: result.Offset,
		Count:  len(items),
	})
}

// decode reads a JSON body into dst, writing a 400 and returning false on failure
func (h *RemarkHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRemarkBodyBytes)).Decode(dst); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		if errors.Is(err, models.ErrUnsupportedMetadataValue) {
			_ = utils.WriteBadRequest(w, "Validation failed", map[string]interface{}{
				"metadata": err.Error(),
			})
			return false
		}
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return false
	}
	return true
}

// toInput builds service input. The acting user and role default to the
// token holder. Admins may name another actor or role; anyone else gets
// errForeignAttribution when the submitted values differ from the token.
func (req CreateRemarkRequest) toInput(claims *middleware.Claims) (remarks.CreateInput, error) {
	deletedBy := req.DeletedBy
	if strings.TrimSpace(deletedBy) == "" {
		deletedBy = claims.Sub
	}
	role := req.DeletedByRole
	if role == nil && claims.Role != "" {
		tokenRole := claims.Role
		role = &tokenRole
	}

	if !claims.HasRole(string(models.RoleAdmin)) {
		if deletedBy != claims.Sub {
			return remarks.CreateInput{}, errForeignAttribution
		}
		if role != nil && *role != claims.Role {
			return remarks.CreateInput{}, errForeignAttribution
		}
	}

	return remarks.CreateInput{
		EntityType:    models.EntityType(req.EntityType),
		EntityID:      req.EntityID,
		ProjectID:     req.ProjectID,
		Reason:        req.Reason,
		DeletedBy:     deletedBy,
		DeletedByRole: role,
		Metadata:      req.Metadata,
	}, nil
}

func remarkToResponse(remark *models.DeletionRemark) RemarkResponse {
	metadata := remark.Metadata
	if metadata == nil {
		metadata = models.Metadata{}
	}
	return RemarkResponse{
		ID:            remark.ID.String(),
		EntityType:    string(remark.EntityType),
		EntityID:      remark.EntityID,
		ProjectID:     remark.ProjectID,
		Reason:        remark.Reason,
		DeletedBy:     remark.DeletedBy,
		DeletedByRole: remark.DeletedByRole,
		Metadata:      metadata,
		CreatedAt:     remark.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:     remark.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
