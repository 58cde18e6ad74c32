package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, fn func(c *gin.Context)) (int, Envelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set("correlation_id", "corr-1")
	fn(c)

	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func TestSuccess(t *testing.T) {
	code, env := render(t, func(c *gin.Context) { Success(c, http.StatusCreated, gin.H{"run_id": "r1"}) })
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "success", env.Status)
	assert.Nil(t, env.Error)
	assert.Equal(t, "corr-1", env.Meta.CorrelationID)
	assert.NotEmpty(t, env.Meta.Timestamp)
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name string
		fn   func(c *gin.Context)
		code int
		kind string
	}{
		{"bad request", func(c *gin.Context) { BadRequest(c, "bad", nil) }, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", func(c *gin.Context) { NotFound(c, "gone") }, http.StatusNotFound, "NOT_FOUND"},
		{"too large", func(c *gin.Context) { TooLarge(c, "big") }, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"},
		{"unprocessable", func(c *gin.Context) { Unprocessable(c, "empty", nil) }, http.StatusUnprocessableEntity, "UNPROCESSABLE_SOURCE"},
		{"unauthorized", func(c *gin.Context) { Unauthorized(c, "who") }, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", func(c *gin.Context) { Forbidden(c, "no") }, http.StatusForbidden, "FORBIDDEN"},
		{"internal", func(c *gin.Context) { InternalError(c, "boom") }, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := render(t, tt.fn)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, "error", env.Status)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.kind, env.Error.Code)
		})
	}
}

func TestConflict_CarriesExistingResource(t *testing.T) {
	code, env := render(t, func(c *gin.Context) { Conflict(c, "already used", gin.H{"run_id": "r1"}) })
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "DUPLICATE_REQUEST", env.Error.Code)
	assert.Equal(t, map[string]interface{}{"run_id": "r1"}, env.Data)
}
