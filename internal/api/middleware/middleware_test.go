package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/research-office/research-registry/internal/config"
	"github.com/research-office/research-registry/pkg/auth"
)

const testSecret = "test-secret-key-for-middleware-tests"
const testIssuer = "test-issuer"

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{
		Secret:      testSecret,
		Issuer:      testIssuer,
		ExpiryHours: 24,
	}
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware())
	r.Use(CorrelationMiddleware())
	return r
}

func generateTestToken(t *testing.T, userID uuid.UUID, name, role string) string {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, testIssuer, userID, name, role, 24)
	require.NoError(t, err)
	return token
}

func serve(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Status string `json:"status"`
		Error  struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Status)
	return body.Error.Code
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	cfg := testJWTConfig()
	r := setupRouter()

	userID := uuid.New()
	var gotUser uuid.UUID
	var gotRole, gotActor, gotName string

	r.GET("/test", AuthMiddleware(cfg), func(c *gin.Context) {
		gotUser = UserID(c)
		gotRole = c.MustGet(KeyRole).(string)
		gotName = c.MustGet(KeyUserName).(string)
		gotActor = Actor(c, "fallback")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := serve(r, http.MethodGet, "/test", generateTestToken(t, userID, "Ana Lima", auth.RoleOperator))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID, gotUser)
	assert.Equal(t, auth.RoleOperator, gotRole)
	assert.Equal(t, "Ana Lima", gotName)
	assert.Equal(t, "Ana Lima", gotActor)
}

func TestAuthMiddleware_ActorFallsBackToUserID(t *testing.T) {
	cfg := testJWTConfig()
	r := setupRouter()

	userID := uuid.New()
	var gotActor string
	r.GET("/test", AuthMiddleware(cfg), func(c *gin.Context) {
		gotActor = Actor(c, "fallback")
		c.Status(http.StatusOK)
	})

	serve(r, http.MethodGet, "/test", generateTestToken(t, userID, "", auth.RoleAdmin))
	assert.Equal(t, userID.String(), gotActor)
}

func TestActor_WithoutAuthUsesDefault(t *testing.T) {
	r := setupRouter()
	var gotActor string
	var gotUser uuid.UUID
	r.GET("/test", func(c *gin.Context) {
		gotActor = Actor(c, "csv-import")
		gotUser = UserID(c)
		c.Status(http.StatusOK)
	})

	serve(r, http.MethodGet, "/test", "")
	assert.Equal(t, "csv-import", gotActor)
	assert.Equal(t, uuid.Nil, gotUser)
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	cfg := testJWTConfig()
	wrongSecret, err := auth.GenerateToken("wrong-secret", testIssuer, uuid.New(), "", auth.RoleAdmin, 24)
	require.NoError(t, err)

	tests := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc123",
		"bogus token":    "Bearer totally-bogus-token",
		"wrong secret":   "Bearer " + wrongSecret,
	}

	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			r := setupRouter()
			reached := false
			r.GET("/test", AuthMiddleware(cfg), func(c *gin.Context) {
				reached = true
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "UNAUTHORIZED", errorCode(t, w))
			assert.False(t, reached)
		})
	}
}

func TestRequireRole(t *testing.T) {
	cfg := testJWTConfig()
	r := setupRouter()
	r.POST("/imports",
		AuthMiddleware(cfg),
		RequireRole(auth.RoleAdmin, auth.RoleOperator),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	tests := []struct {
		role     string
		wantCode int
	}{
		{auth.RoleAdmin, http.StatusOK},
		{auth.RoleOperator, http.StatusOK},
		{auth.RoleViewer, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			w := serve(r, http.MethodPost, "/imports", generateTestToken(t, uuid.New(), "", tt.role))
			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusForbidden {
				assert.Equal(t, "FORBIDDEN", errorCode(t, w))
			}
		})
	}
}

func TestRequireRole_WithoutAuth(t *testing.T) {
	r := setupRouter()
	r.GET("/admin", RequireRole(auth.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodGet, "/admin", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCORSMiddleware_SetsHeaders(t *testing.T) {
	r := setupRouter()
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodGet, "/test", "")

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), CorrelationHeader)
}

func TestCORSMiddleware_PreflightOptions(t *testing.T) {
	r := setupRouter()
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodOptions, "/test", "")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCorrelationMiddleware_GeneratesID(t *testing.T) {
	r := setupRouter()
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodGet, "/test", "")

	_, err := uuid.Parse(w.Header().Get(CorrelationHeader))
	assert.NoError(t, err)
}

func TestCorrelationMiddleware_PreservesExistingID(t *testing.T) {
	r := setupRouter()
	var seen string
	r.GET("/test", func(c *gin.Context) {
		seen = c.GetString(KeyCorrelationID)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(CorrelationHeader, "my-custom-correlation-id")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "my-custom-correlation-id", w.Header().Get(CorrelationHeader))
	assert.Equal(t, "my-custom-correlation-id", seen)
}

func TestLoggingMiddleware_LogsIdentityAndOutcome(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := testJWTConfig()
	r := setupRouter()
	r.Use(LoggingMiddleware(logger, ServiceName))
	r.GET("/imports/:run_id", AuthMiddleware(cfg), func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	w := serve(r, http.MethodGet, "/imports/abc", generateTestToken(t, uuid.New(), "Ana Lima", auth.RoleViewer))
	require.Equal(t, http.StatusNotFound, w.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "request processed", line["msg"])
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, ServiceName, line["service"])
	assert.Equal(t, "/imports/:run_id", line["path"])
	assert.Equal(t, "client_error", line["outcome"])
	assert.Equal(t, "Ana Lima", line["actor"])
	assert.NotEmpty(t, line["correlation_id"])
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status  int
		outcome string
		level   slog.Level
	}{
		{http.StatusOK, "success", slog.LevelInfo},
		{http.StatusCreated, "success", slog.LevelInfo},
		{http.StatusConflict, "client_error", slog.LevelWarn},
		{http.StatusRequestEntityTooLarge, "client_error", slog.LevelWarn},
		{http.StatusInternalServerError, "server_error", slog.LevelError},
		{http.StatusContinue, "unknown", slog.LevelInfo},
	}
	for _, tt := range tests {
		outcome, level := classifyStatus(tt.status)
		assert.Equal(t, tt.outcome, outcome, "status %d", tt.status)
		assert.Equal(t, tt.level, level, "status %d", tt.status)
	}
}
