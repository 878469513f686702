package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/upb/freelance-marketplace/backend/auth"
	"github.com/upb/freelance-marketplace/backend/config"
	"github.com/upb/freelance-marketplace/backend/middleware"
	"github.com/upb/freelance-marketplace/backend/models"
	"github.com/upb/freelance-marketplace/backend/repositories"
	"github.com/upb/freelance-marketplace/backend/repositories/postgres"
	"github.com/upb/freelance-marketplace/backend/services/ratelimit"
	"github.com/upb/freelance-marketplace/backend/services/remarks"
)

func TestNewDependencies(t *testing.T) {
	t.Run("successful initialization with postgres", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		logger := zaptest.NewLogger(t)

		// Skip if database not available
		if !isDatabaseAvailable(t, cfg) {
			t.Skip("database not available")
		}

		deps, err := NewDependencies(ctx, cfg, logger)
		require.NoError(t, err)
		require.NotNil(t, deps)

		assert.NotNil(t, deps.DB)
		assert.Nil(t, deps.Mongo)
		assert.Nil(t, deps.Redis)
		assert.NotNil(t, deps.Remarks)
		assert.NotNil(t, deps.TxManager)
		assert.NotNil(t, deps.RemarkService)
		assert.NotNil(t, deps.AuthMiddleware)
		assert.NotNil(t, deps.RateLimitMiddleware)
		assert.False(t, deps.RateLimiter.Enabled())

		err = deps.Close(ctx)
		assert.NoError(t, err)
	})

	t.Run("database connection failure", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Database.Host = "127.0.0.1"
		cfg.Database.Port = 1
		logger := zaptest.NewLogger(t)

		deps, err := NewDependencies(ctx, cfg, logger)
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize store")
	})

	t.Run("unsupported store", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store.Backend = "sqlite"

		deps, err := NewDependencies(context.Background(), cfg, zap.NewNop())
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "unsupported remarks store")
	})
}

func TestInitRedis(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled without url", func(t *testing.T) {
		deps := &Dependencies{Config: testConfig(t), Logger: zap.NewNop()}

		require.NoError(t, deps.initRedis(ctx, deps.Config))
		assert.Nil(t, deps.Redis)
	})

	t.Run("connects to configured server", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig(t)
		cfg.Redis.URL = "redis://" + mr.Addr()
		deps := &Dependencies{Config: cfg, Logger: zap.NewNop()}

		require.NoError(t, deps.initRedis(ctx, cfg))
		require.NotNil(t, deps.Redis)
		assert.NoError(t, deps.Close(ctx))
		assert.Nil(t, deps.Redis)
	})

	t.Run("invalid url", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Redis.URL = "not-a-redis-url"
		deps := &Dependencies{Config: cfg, Logger: zap.NewNop()}

		err := deps.initRedis(ctx, cfg)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid REDIS_URL")
		assert.Nil(t, deps.Redis)
	})

	t.Run("unreachable server", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		cfg := testConfig(t)
		cfg.Redis.URL = "redis://" + addr
		deps := &Dependencies{Config: cfg, Logger: zap.NewNop()}

		err := deps.initRedis(ctx, cfg)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "redis ping failed")
		assert.Nil(t, deps.Redis)
	})
}

func TestInitServices(t *testing.T) {
	ctx := context.Background()

	t.Run("without redis", func(t *testing.T) {
		cfg := testConfig(t)
		deps := &Dependencies{Config: cfg, Logger: zap.NewNop(), Remarks: &memoryRemarks{}}

		require.NoError(t, deps.initServices(cfg))
		require.NotNil(t, deps.Notifier)
		require.NotNil(t, deps.RemarkService)
		assert.False(t, deps.RateLimiter.Enabled())

		remark, err := deps.RemarkService.Create(ctx, remarks.CreateInput{
			EntityType: models.EntityTypeMilestone,
			EntityID:   "m-1",
			Reason:     "duplicate entry",
			DeletedBy:  "user-1",
		})
		require.NoError(t, err)
		assert.Equal(t, "duplicate entry", remark.Reason)

		assert.NoError(t, deps.Close(ctx))
		assert.Nil(t, deps.Notifier)
	})

	t.Run("with redis enables the limiter", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig(t)
		cfg.Redis.URL = "redis://" + mr.Addr()
		cfg.RateLimit.RemarksCreatePerMinute = 1
		deps := &Dependencies{Config: cfg, Logger: zap.NewNop(), Remarks: &memoryRemarks{}}

		require.NoError(t, deps.initRedis(ctx, cfg))
		require.NoError(t, deps.initServices(cfg))
		assert.True(t, deps.RateLimiter.Enabled())

		first, err := deps.RateLimiter.Allow(ctx, ratelimit.ScopeRemarkCreate, "user-1")
		require.NoError(t, err)
		assert.True(t, first.Allowed)

		second, err := deps.RateLimiter.Allow(ctx, ratelimit.ScopeRemarkCreate, "user-1")
		require.NoError(t, err)
		assert.False(t, second.Allowed)

		assert.NoError(t, deps.Close(ctx))
	})
}

func TestInitAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := middleware.GetClaimsFromContext(r.Context())
		if claims == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("X-Sub", claims.Sub)
		w.Header().Set("X-Role", claims.Role)
		w.WriteHeader(http.StatusOK)
	})

	t.Run("no secret rejects every token", func(t *testing.T) {
		cfg := testConfig(t)
		deps := &Dependencies{Config: cfg, Logger: zap.NewNop()}
		deps.initAuth(cfg)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer anything")
		rec := httptest.NewRecorder()
		deps.AuthMiddleware.RequireAuth(ok).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("secret accepts issued tokens", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.JWTSecret = "test-secret"
		cfg.Auth.Issuer = "marketplace"
		deps := &Dependencies{Config: cfg, Logger: zap.NewNop()}
		deps.initAuth(cfg)

		token, err := auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer).
			IssueToken("user-42", string(models.RoleAdmin), time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		deps.AuthMiddleware.RequireAuth(ok).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user-42", rec.Header().Get("X-Sub"))
		assert.Equal(t, "admin", rec.Header().Get("X-Role"))
	})
}

func TestJWTTokenValidatorAdapter(t *testing.T) {
	validator := auth.NewJWTValidator("secret", "marketplace")
	adapter := &jwtTokenValidatorAdapter{validator: validator}

	t.Run("maps parsed claims", func(t *testing.T) {
		token, err := validator.IssueToken("user-7", "freelancer", time.Hour)
		require.NoError(t, err)

		claims, err := adapter.ValidateToken(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "user-7", claims.Sub)
		assert.Equal(t, "freelancer", claims.Role)
		assert.Equal(t, []string{"freelancer"}, claims.Groups)
		assert.Equal(t, "marketplace", claims.Iss)
		assert.Greater(t, claims.Exp, claims.Iat)
		assert.True(t, claims.HasRole("freelancer"))
	})

	t.Run("empty role yields no groups", func(t *testing.T) {
		token, err := validator.IssueToken("user-8", "", time.Hour)
		require.NoError(t, err)

		claims, err := adapter.ValidateToken(context.Background(), token)
		require.NoError(t, err)
		assert.Empty(t, claims.Groups)
	})

	t.Run("propagates validation errors", func(t *testing.T) {
		claims, err := adapter.ValidateToken(context.Background(), "garbage")
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
		assert.Nil(t, claims)
	})
}

func TestDependenciesClose(t *testing.T) {
	t.Run("nothing initialized", func(t *testing.T) {
		deps := &Dependencies{Config: testConfig(t), Logger: zap.NewNop()}
		assert.NoError(t, deps.Close(context.Background()))
	})

	t.Run("close twice", func(t *testing.T) {
		cfg := testConfig(t)
		deps := &Dependencies{Config: cfg, Logger: zap.NewNop(), Remarks: &memoryRemarks{}}
		require.NoError(t, deps.initServices(cfg))

		assert.NoError(t, deps.Close(context.Background()))
		assert.NoError(t, deps.Close(context.Background()))
	})
}

// memoryRemarks is a minimal in-memory DeletionRemarkRepository
type memoryRemarks struct {
	records []*models.DeletionRemark
}

func (m *memoryRemarks) Insert(_ context.Context, remark *models.DeletionRemark) error {
	m.records = append(m.records, remark)
	return nil
}

func (m *memoryRemarks) GetByID(_ context.Context, id uuid.UUID) (*models.DeletionRemark, error) {
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memoryRemarks) List(context.Context, repositories.RemarkFilter) ([]*models.DeletionRemark, error) {
	return m.records, nil
}

func (m *memoryRemarks) WithTx(repositories.Transaction) repositories.DeletionRemarkRepository {
	return m
}

// Test helpers

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: config.DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "dev",
			Password:        "marketplace",
			Database:        "marketplace_test",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Store: config.StoreConfig{Backend: config.StorePostgres},
		Redis: config.RedisConfig{CacheTTL: time.Minute},
		RateLimit: config.RateLimitConfig{
			RemarksCreatePerMinute: 30,
		},
		Notify: config.NotifyConfig{
			BufferSize:      16,
			Workers:         1,
			ShutdownTimeout: time.Second,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:  "debug",
			LogFormat: "json",
		},
	}
}

func isDatabaseAvailable(t *testing.T, cfg *config.Config) bool {
	t.Helper()
	factory, err := postgres.NewRepositoryFactory(cfg, zap.NewNop())
	if err != nil {
		return false
	}
	defer factory.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return factory.GetDB().PingContext(ctx) == nil
}
