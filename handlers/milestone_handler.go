package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/upb/freelance-marketplace/backend/middleware"
	"github.com/upb/freelance-marketplace/backend/models"
	"github.com/upb/freelance-marketplace/backend/utils"
	"go.uber.org/zap"
)

// MilestonePreviewRequest describes the milestone about to be deleted
type MilestonePreviewRequest struct {
	Title   string   `json:"title" validate:"max=200"`
	Amount  *float64 `json:"amount,omitempty" validate:"omitempty,gte=0"`
	DueDate *string  `json:"dueDate,omitempty"`
}

// MilestonePreviewResponse is the content of the deletion confirmation dialog
type MilestonePreviewResponse struct {
	Title         string          `json:"title"`
	AmountDisplay string          `json:"amountDisplay"`
	DueDate       string          `json:"dueDate,omitempty"`
	Message       string          `json:"message"`
	Metadata      models.Metadata `json:"metadata"`
}

// MilestoneHandler serves the milestone deletion confirmation content
type MilestoneHandler struct {
	logger *zap.Logger
}

// NewMilestoneHandler creates a new MilestoneHandler
func NewMilestoneHandler(logger *zap.Logger) *MilestoneHandler {
	return &MilestoneHandler{logger: logger}
}

// HandleDeletionPreview handles POST /api/v1/milestones/deletion-preview
func (h *MilestoneHandler) HandleDeletionPreview(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	var req MilestonePreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	summary := models.MilestoneSummary{
		Title:  strings.TrimSpace(req.Title),
		Amount: req.Amount,
	}
	if req.DueDate != nil && strings.TrimSpace(*req.DueDate) != "" {
		due, err := parseDueDate(strings.TrimSpace(*req.DueDate))
		if err != nil {
			_ = utils.WriteBadRequest(w, "Validation failed", map[string]interface{}{
				"dueDate": "dueDate must be YYYY-MM-DD or RFC 3339",
			})
			return
		}
		summary.DueDate = &due
	}

	_ = utils.WriteOK(w, MilestonePreviewResponse{
		Title:         summary.Title,
		AmountDisplay: summary.AmountDisplay(),
		DueDate:       summary.DueDateDisplay(),
		Message:       summary.ConfirmationMessage(),
		Metadata:      summary.Metadata(),
	})
}

func parseDueDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
