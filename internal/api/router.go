package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/research-office/research-registry/internal/api/handlers"
	"github.com/research-office/research-registry/internal/api/middleware"
	"github.com/research-office/research-registry/internal/api/response"
	"github.com/research-office/research-registry/internal/config"
	"github.com/research-office/research-registry/internal/importer"
	"github.com/research-office/research-registry/internal/metrics"
	"github.com/research-office/research-registry/internal/repository"
	"github.com/research-office/research-registry/internal/schema"
	"github.com/research-office/research-registry/pkg/auth"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Store         repository.Store
	Runs          handlers.RunStore
	Keys          handlers.KeyClaimer
	FailedImports handlers.FailedImportStore
	Overrides     schema.Overrides
	// Registry is served at /metrics when set.
	Registry *prometheus.Registry
	// Observer receives pipeline events, usually the import metrics.
	Observer importer.Observer
	Logger   *slog.Logger
}

// PostgresDeps builds the Postgres-backed dependencies over pool.
func PostgresDeps(pool *pgxpool.Pool) Deps {
	return Deps{
		Store:         repository.NewPostgresStore(pool),
		Runs:          repository.NewImportRunRepository(pool),
		Keys:          repository.NewIdempotencyRepository(pool),
		FailedImports: repository.NewFailedImportRepository(pool),
	}
}

// NewRouter creates and configures the Gin router with all routes and middleware.
func NewRouter(cfg *config.Config, deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.MaxMultipartMemory = cfg.Upload.MaxFileSize()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.CorrelationMiddleware())
	r.Use(middleware.LoggingMiddleware(logger, middleware.ServiceName))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": middleware.ServiceName,
		})
	})

	if deps.Registry != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(deps.Registry)))
	}

	importHandler := handlers.NewImportHandler(deps.Store, deps.Runs, deps.Keys, deps.Observer, deps.Overrides, cfg, logger)
	failedHandler := handlers.NewFailedImportHandler(deps.FailedImports)

	anyRole := middleware.RequireRole(auth.RoleAdmin, auth.RoleOperator, auth.RoleViewer)
	writers := middleware.RequireRole(auth.RoleAdmin, auth.RoleOperator)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(&cfg.JWT))
	{
		v1.POST("/imports/:kind", writers, importHandler.HandleImport)
		v1.GET("/imports/:run_id", anyRole, importHandler.HandleGetRun)

		v1.GET("/failed-imports", anyRole, failedHandler.HandleList)
		v1.POST("/failed-imports/:id/resolve", writers, failedHandler.HandleResolve)
	}

	if cfg.Server.DevTokens {
		r.POST("/dev/token", devTokenHandler(cfg))
	}

	return r
}

// devTokenHandler mints tokens for local testing. Only routed when
// DEV_TOKENS_ENABLED is set.
func devTokenHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			UserID string `json:"user_id"`
			Name   string `json:"name"`
			Role   string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request", nil)
			return
		}

		userID := uuid.New()
		if req.UserID != "" {
			parsed, err := uuid.Parse(req.UserID)
			if err != nil {
				response.BadRequest(c, "invalid user_id", nil)
				return
			}
			userID = parsed
		}
		if req.Role == "" {
			req.Role = auth.RoleOperator
		}
		if !auth.ValidRole(req.Role) {
			response.BadRequest(c, "unknown role", gin.H{"roles": []string{auth.RoleAdmin, auth.RoleOperator, auth.RoleViewer}})
			return
		}

		token, err := auth.GenerateToken(cfg.JWT.Secret, cfg.JWT.Issuer, userID, req.Name, req.Role, cfg.JWT.ExpiryHours)
		if err != nil {
			response.InternalError(c, "failed to generate token")
			return
		}

		response.Success(c, http.StatusOK, gin.H{"token": token, "user_id": userID, "role": req.Role})
	}
}
