package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/freelance-marketplace/backend/app"
	"github.com/upb/freelance-marketplace/backend/config"
	appmw "github.com/upb/freelance-marketplace/backend/middleware"
	"github.com/upb/freelance-marketplace/backend/models"
	"github.com/upb/freelance-marketplace/backend/repositories"
	"github.com/upb/freelance-marketplace/backend/services/ratelimit"
	"github.com/upb/freelance-marketplace/backend/services/remarks"
)

// staticValidator maps fixed token strings to claims
type staticValidator map[string]*appmw.Claims

func (v staticValidator) ValidateToken(_ context.Context, token string) (*appmw.Claims, error) {
	if claims, ok := v[token]; ok {
		return claims, nil
	}
	return nil, errors.New("unknown token")
}

type memoryRemarks struct {
	mu      sync.Mutex
	records []*models.DeletionRemark
}

func (m *memoryRemarks) Insert(_ context.Context, remark *models.DeletionRemark) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, remark)
	return nil
}

func (m *memoryRemarks) GetByID(_ context.Context, id uuid.UUID) (*models.DeletionRemark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memoryRemarks) List(_ context.Context, filter repositories.RemarkFilter) ([]*models.DeletionRemark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.DeletionRemark{}
	for i := len(m.records) - 1; i >= 0; i-- {
		if filter.EntityType != "" && m.records[i].EntityType != filter.EntityType {
			continue
		}
		out = append(out, m.records[i])
	}
	return out, nil
}

func (m *memoryRemarks) WithTx(repositories.Transaction) repositories.DeletionRemarkRepository {
	return m
}

func newTestDeps(t *testing.T, limiterClient redis.Cmdable, perMinute int) *app.Dependencies {
	t.Helper()
	logger := zap.NewNop()

	validator := staticValidator{
		"client-token": {Sub: "client-1", Role: string(models.RoleClient)},
		"admin-token":  {Sub: "admin-1", Role: string(models.RoleAdmin)},
	}
	limiter := ratelimit.NewRateLimitService(limiterClient, perMinute, time.Minute, logger)

	return &app.Dependencies{
		Config: &config.Config{
			CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		},
		Logger:              logger,
		RemarkService:       remarks.NewService(&memoryRemarks{}, nil, logger),
		RateLimiter:         limiter,
		AuthMiddleware:      appmw.NewAuthMiddleware(validator, logger),
		RateLimitMiddleware: appmw.NewRateLimitMiddleware(limiter, logger),
	}
}

func do(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data
}

func TestPublicRoutes(t *testing.T) {
	h := SetupRoutes(newTestDeps(t, nil, 30))

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"liveness", http.MethodGet, "/healthz", nil, http.StatusOK},
		{"readiness without backends", http.MethodGet, "/readyz", nil, http.StatusOK},
		{"categories", http.MethodGet, "/api/v1/catalog/categories", nil, http.StatusOK},
		{"skills", http.MethodGet, "/api/v1/catalog/skills", nil, http.StatusOK},
		{"plans", http.MethodGet, "/api/v1/catalog/plans", nil, http.StatusOK},
		{"milestone preview", http.MethodPost, "/api/v1/milestones/deletion-preview", map[string]interface{}{"title": "Design"}, http.StatusOK},
		{"unknown path", http.MethodGet, "/api/v1/nope", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, "", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}

	t.Run("preview renders missing amount as zero", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/milestones/deletion-preview", "", map[string]interface{}{"title": "Design"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "0", decodeData(t, rec)["amountDisplay"])
	})
}

func TestDeletionRemarkRoutes(t *testing.T) {
	h := SetupRoutes(newTestDeps(t, nil, 30))

	create := map[string]interface{}{
		"entityType": "milestone",
		"entityId":   "milestone-9",
		"reason":     "duplicate entry",
	}

	t.Run("create requires a token", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/deletion-remarks", "", create)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("create rejects an unknown entity type", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/deletion-remarks", "client-token", map[string]interface{}{
			"entityType": "invoice",
			"entityId":   "x",
			"reason":     "r",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	var id string
	t.Run("create then read back as admin", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/deletion-remarks", "client-token", create)
		require.Equal(t, http.StatusCreated, rec.Code)

		created := decodeData(t, rec)
		id, _ = created["id"].(string)
		require.NotEmpty(t, id)
		assert.Equal(t, "client-1", created["deletedBy"])
		assert.Equal(t, "client", created["deletedByRole"])
		assert.Equal(t, created["createdAt"], created["updatedAt"])

		rec = do(t, h, http.MethodGet, "/api/v1/deletion-remarks/"+id, "admin-token", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeData(t, rec)
		assert.Equal(t, "milestone", got["entityType"])
		assert.Equal(t, "milestone-9", got["entityId"])
		assert.Equal(t, "duplicate entry", got["reason"])
	})

	t.Run("non admin cannot read", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/deletion-remarks/"+id, "client-token", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(t, h, http.MethodGet, "/api/v1/deletion-remarks", "client-token", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("batch create", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/deletion-remarks/batch", "client-token", map[string]interface{}{
			"remarks": []interface{}{
				map[string]interface{}{"entityType": "bid", "entityId": "bid-1", "reason": "withdrawn"},
				map[string]interface{}{"entityType": "project", "entityId": "project-1", "reason": "cancelled"},
			},
		})
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("list as admin", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/deletion-remarks?limit=10", "admin-token", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data []map[string]interface{} `json:"data"`
			Meta struct {
				Limit int `json:"limit"`
				Count int `json:"count"`
			} `json:"meta"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 10, resp.Meta.Limit)
		assert.Equal(t, 3, resp.Meta.Count)
		assert.Len(t, resp.Data, 3)
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/deletion-remarks/"+uuid.NewString(), "admin-token", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDeletionRemarkRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := SetupRoutes(newTestDeps(t, client, 1))
	body := map[string]interface{}{"entityType": "bid", "entityId": "bid-2", "reason": "spam"}

	rec := do(t, h, http.MethodPost, "/api/v1/deletion-remarks", "client-token", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = do(t, h, http.MethodPost, "/api/v1/deletion-remarks", "client-token", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Reads are not counted against the create window
	rec = do(t, h, http.MethodGet, "/api/v1/deletion-remarks", "admin-token", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeletionRemarkBatchRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := SetupRoutes(newTestDeps(t, client, 1))
	batch := func(n int) map[string]interface{} {
		items := make([]interface{}, 0, n)
		for i := 0; i < n; i++ {
			items = append(items, map[string]interface{}{"entityType": "bid", "entityId": uuid.NewString(), "reason": "spam"})
		}
		return map[string]interface{}{"remarks": items}
	}

	rec := do(t, h, http.MethodPost, "/api/v1/deletion-remarks/batch", "client-token", batch(2))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = do(t, h, http.MethodPost, "/api/v1/deletion-remarks/batch", "client-token", batch(100))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Refused batches are not charged, so one remark still fits
	rec = do(t, h, http.MethodPost, "/api/v1/deletion-remarks/batch", "client-token", batch(1))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// Single creates share the same window
	rec = do(t, h, http.MethodPost, "/api/v1/deletion-remarks", "client-token", map[string]interface{}{
		"entityType": "bid", "entityId": "bid-3", "reason": "spam",
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/deletion-remarks", "admin-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
}

func TestDeletionRemarkAttribution(t *testing.T) {
	h := SetupRoutes(newTestDeps(t, nil, 30))

	t.Run("client cannot record as someone else", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/deletion-remarks", "client-token", map[string]interface{}{
			"entityType":    "project",
			"entityId":      "project-4",
			"reason":        "cleanup",
			"deletedBy":     "admin-1",
			"deletedByRole": "admin",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(t, h, http.MethodGet, "/api/v1/deletion-remarks", "admin-token", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(0), decodeMetaCount(t, rec))
	})

	t.Run("admin records for a back-office actor", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/deletion-remarks", "admin-token", map[string]interface{}{
			"entityType":    "user",
			"entityId":      "user-77",
			"reason":        "account closed on request",
			"deletedBy":     "support-2",
			"deletedByRole": "freelancer",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		created := decodeData(t, rec)
		assert.Equal(t, "support-2", created["deletedBy"])
		assert.Equal(t, "freelancer", created["deletedByRole"])
	})
}

func decodeMetaCount(t *testing.T, rec *httptest.ResponseRecorder) float64 {
	t.Helper()
	var resp struct {
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	count, _ := resp.Meta["count"].(float64)
	return count
}

func TestHealthChecks(t *testing.T) {
	t.Run("no backends", func(t *testing.T) {
		assert.Empty(t, healthChecks(&app.Dependencies{}))
	})

	t.Run("redis probe", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })

		checks := healthChecks(&app.Dependencies{Redis: client})
		require.Contains(t, checks, "redis")
		assert.NoError(t, checks["redis"].HealthCheck(context.Background()))

		mr.Close()
		assert.Error(t, checks["redis"].HealthCheck(context.Background()))
	})
}
