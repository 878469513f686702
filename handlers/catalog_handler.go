package handlers

import (
	"net/http"

	"github.com/upb/freelance-marketplace/backend/internal/catalog"
	"github.com/upb/freelance-marketplace/backend/utils"
)

// CatalogHandler serves the static marketplace catalog
type CatalogHandler struct{}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler() *CatalogHandler {
	return &CatalogHandler{}
}

// HandleCategories handles GET /api/v1/catalog/categories
func (h *CatalogHandler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, catalog.Categories())
}

// HandleSkills handles GET /api/v1/catalog/skills?category=slug
func (h *CatalogHandler) HandleSkills(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category != "" && !catalog.HasCategory(category) {
		_ = utils.WriteNotFound(w, "Unknown category")
		return
	}
	_ = utils.WriteOK(w, catalog.Skills(category))
}

// HandlePlans handles GET /api/v1/catalog/plans
func (h *CatalogHandler) HandlePlans(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, catalog.Plans())
}
