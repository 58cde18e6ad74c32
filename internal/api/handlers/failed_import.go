package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/research-office/research-registry/internal/api/response"
	"github.com/research-office/research-registry/internal/models"
	"github.com/research-office/research-registry/internal/repository"
)

// FailedImportStore is the triage side of failed import records.
type FailedImportStore interface {
	List(ctx context.Context, filter repository.FailedImportFilter) ([]models.FailedImportRecord, error)
	MarkResolved(ctx context.Context, id uuid.UUID, notes string) (*models.FailedImportRecord, error)
}

// FailedImportHandler lists and resolves rows the pipeline could not commit.
type FailedImportHandler struct {
	records FailedImportStore
}

// NewFailedImportHandler creates a new failed import handler.
func NewFailedImportHandler(records FailedImportStore) *FailedImportHandler {
	return &FailedImportHandler{records: records}
}

// HandleList handles GET /api/v1/failed-imports.
func (h *FailedImportHandler) HandleList(c *gin.Context) {
	filter := repository.FailedImportFilter{Kind: c.Query("kind")}

	if v := c.Query("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			response.BadRequest(c, "resolved must be true or false", nil)
			return
		}
		filter.Resolved = &resolved
	}

	var err error
	if filter.Limit, err = intQuery(c, "limit"); err != nil {
		response.BadRequest(c, err.Error(), nil)
		return
	}
	if filter.Offset, err = intQuery(c, "offset"); err != nil {
		response.BadRequest(c, err.Error(), nil)
		return
	}

	records, err := h.records.List(c.Request.Context(), filter)
	if err != nil {
		response.InternalError(c, fmt.Sprintf("failed to list failed imports: %v", err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}

type resolveRequest struct {
	Notes string `json:"notes"`
}

// HandleResolve handles POST /api/v1/failed-imports/:id/resolve.
func (h *FailedImportHandler) HandleResolve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid id format", nil)
		return
	}

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body", nil)
		return
	}
	notes := strings.TrimSpace(req.Notes)
	if notes == "" {
		response.BadRequest(c, "notes are required", nil)
		return
	}

	rec, err := h.records.MarkResolved(c.Request.Context(), id, notes)
	if errors.Is(err, repository.ErrNotFound) {
		response.NotFound(c, "failed import record not found")
		return
	}
	if err != nil {
		response.InternalError(c, fmt.Sprintf("failed to resolve record: %v", err))
		return
	}

	response.Success(c, http.StatusOK, rec)
}

func intQuery(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}
