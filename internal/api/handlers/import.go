package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/research-office/research-registry/internal/api/middleware"
	"github.com/research-office/research-registry/internal/api/response"
	"github.com/research-office/research-registry/internal/config"
	"github.com/research-office/research-registry/internal/entity"
	"github.com/research-office/research-registry/internal/importer"
	"github.com/research-office/research-registry/internal/models"
	"github.com/research-office/research-registry/internal/repository"
	"github.com/research-office/research-registry/internal/schema"
)

// keyClaimGrace is how long a key bound to a run that does not exist yet
// is treated as an import still starting rather than a stale claim.
const keyClaimGrace = time.Minute

// RunStore persists import runs.
type RunStore interface {
	Create(ctx context.Context, run *models.ImportRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ImportRun, error)
	Complete(ctx context.Context, run *models.ImportRun) error
}

// KeyClaimer binds Idempotency-Key values to import runs.
type KeyClaimer interface {
	Claim(ctx context.Context, k repository.ImportKey) (*repository.KeyClaim, error)
	Release(ctx context.Context, actor, key string, runID uuid.UUID) error
}

// ImportHandler runs CSV and zip uploads through the import pipeline.
type ImportHandler struct {
	store     repository.Store
	runs      RunStore
	keys      KeyClaimer
	observer  importer.Observer
	entities  *entity.Handlers
	overrides schema.Overrides
	cfg       *config.Config
	logger    *slog.Logger
}

// NewImportHandler creates a new import handler. observer may be nil.
func NewImportHandler(
	store repository.Store,
	runs RunStore,
	keys KeyClaimer,
	observer importer.Observer,
	overrides schema.Overrides,
	cfg *config.Config,
	logger *slog.Logger,
) *ImportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportHandler{
		store:     store,
		runs:      runs,
		keys:      keys,
		observer:  observer,
		entities:  entity.NewHandlers(cfg.Import.ChangeReason),
		overrides: overrides,
		cfg:       cfg,
		logger:    logger.With("component", "import_handler"),
	}
}

// importResponse is the body of a completed upload. Errors is the capped
// preview; the full report is stored on the run.
type importResponse struct {
	Run      *models.ImportRun     `json:"run"`
	Errors   []string              `json:"errors"`
	Warnings []string              `json:"warnings,omitempty"`
	Files    []importer.FileReport `json:"files,omitempty"`
}

// HandleImport handles POST /api/v1/imports/:kind.
func (h *ImportHandler) HandleImport(c *gin.Context) {
	ctx := c.Request.Context()
	kind := c.Param("kind")

	rows, err := importer.HandlerFor(kind, h.entities)
	if err != nil {
		response.BadRequest(c, err.Error(), gin.H{"kinds": importer.Kinds()})
		return
	}
	resolved, err := h.overrides.Apply(kind, rows.Schema())
	if err != nil {
		response.InternalError(c, fmt.Sprintf("failed to resolve schema: %v", err))
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file field is required", nil)
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".csv" && ext != ".zip" {
		response.BadRequest(c, "file must be a .csv or .zip", nil)
		return
	}
	if file.Size > h.cfg.Upload.MaxFileSize() {
		response.TooLarge(c, fmt.Sprintf("file exceeds max size of %d bytes", h.cfg.Upload.MaxFileSize()))
		return
	}

	actor := middleware.Actor(c, h.cfg.Import.Actor)
	runID := uuid.New()

	tempPath, contentHash, err := h.saveUpload(file, runID, ext)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	defer os.Remove(tempPath)

	run := &models.ImportRun{
		ID:          runID,
		Kind:        kind,
		Filename:    file.Filename,
		ContentHash: contentHash,
		Status:      models.RunStatusRunning,
		Actor:       actor,
	}

	var key *repository.ImportKey
	if k := strings.TrimSpace(c.GetHeader("Idempotency-Key")); k != "" && h.keys != nil {
		key = &repository.ImportKey{Actor: actor, Key: k, RunID: runID, ContentHash: contentHash}
		if !h.claimKey(c, *key) {
			return
		}
		run.IdempotencyKey = &key.Key
	}

	if err := h.runs.Create(ctx, run); err != nil {
		if key != nil {
			if relErr := h.keys.Release(context.WithoutCancel(ctx), key.Actor, key.Key, runID); relErr != nil {
				h.logger.Error("failed to release import key", "key", key.Key, "error", relErr)
			}
		}
		response.InternalError(c, fmt.Sprintf("failed to create import run: %v", err))
		return
	}

	logger := h.logger.With("run_id", runID, "kind", kind, "source", file.Filename)
	opts := []importer.Option{
		importer.WithLogger(logger),
		importer.WithActor(actor),
		importer.WithSchema(resolved),
		importer.WithSource(file.Filename),
	}
	if h.observer != nil {
		opts = append(opts, importer.WithObserver(h.observer))
	}
	proc := importer.New(h.store, rows, opts...)

	body, processErr := h.process(ctx, proc, tempPath, file.Filename, ext, run)

	// The run is finalized even when the client went away mid-import.
	if err := h.runs.Complete(context.WithoutCancel(ctx), run); err != nil {
		logger.Error("failed to complete import run", "error", err)
		response.InternalError(c, fmt.Sprintf("failed to complete import run: %v", err))
		return
	}

	switch {
	case processErr == nil:
		body.Run = run
		response.Success(c, http.StatusCreated, body)
	case importer.IsFatal(processErr):
		response.Unprocessable(c, processErr.Error(), run)
	default:
		response.InternalError(c, fmt.Sprintf("import interrupted: %v", processErr))
	}
}

// claimKey binds k to its run. It writes the response and returns false when
// the key already belongs to another upload. A key whose run was never
// created is released and claimed again once keyClaimGrace has passed.
func (h *ImportHandler) claimKey(c *gin.Context, k repository.ImportKey) bool {
	ctx := c.Request.Context()
	for attempt := 0; attempt < 2; attempt++ {
		claim, err := h.keys.Claim(ctx, k)
		if err != nil {
			response.InternalError(c, fmt.Sprintf("idempotency check failed: %v", err))
			return false
		}
		if !claim.Existing {
			return true
		}

		existing, err := h.runs.GetByID(ctx, claim.RunID)
		if err != nil {
			response.InternalError(c, fmt.Sprintf("failed to retrieve import run: %v", err))
			return false
		}
		switch {
		case existing != nil && claim.ContentHash != k.ContentHash:
			response.Conflict(c, "idempotency key already used for a different file", existing)
			return false
		case existing != nil:
			response.Conflict(c, "duplicate import (idempotency key match)", existing)
			return false
		case time.Since(claim.ClaimedAt) < keyClaimGrace:
			response.Conflict(c, "an import with this idempotency key is starting", nil)
			return false
		}

		h.logger.Warn("releasing stale import key", "key", k.Key, "run_id", claim.RunID)
		if err := h.keys.Release(ctx, k.Actor, k.Key, claim.RunID); err != nil {
			response.InternalError(c, fmt.Sprintf("failed to release import key: %v", err))
			return false
		}
	}
	response.InternalError(c, "idempotency key could not be claimed")
	return false
}

// process runs the pipeline and copies the counts and report onto run.
func (h *ImportHandler) process(ctx context.Context, proc *importer.Processor, path, filename, ext string, run *models.ImportRun) (importResponse, error) {
	var (
		body   importResponse
		report any
		err    error
	)

	limit := h.cfg.Import.ErrorDisplayLimit
	if ext == ".zip" {
		var bulk *importer.BulkReport
		bulk, err = processArchive(ctx, proc, path, filename)
		if bulk != nil {
			run.TotalRows, run.SuccessCount, run.SkipCount, run.ErrorCount =
				bulk.TotalRows, bulk.SuccessCount, bulk.SkipCount, bulk.ErrorCount
			body.Errors = bulk.ErrorPreview(limit)
			body.Files = summarizeFiles(bulk.Files)
			report = bulk
		}
	} else {
		var r *importer.Report
		r, err = processCSV(ctx, proc, path, filename)
		if r != nil {
			run.TotalRows, run.SuccessCount, run.SkipCount, run.ErrorCount =
				r.TotalRows, r.SuccessCount, r.SkipCount, r.ErrorCount
			body.Errors = r.ErrorPreview(limit)
			body.Warnings = r.Warnings
			report = r
		}
	}

	run.Status = models.RunStatusCompleted
	if err != nil {
		run.Status = models.RunStatusFailed
		report = gin.H{"error": err.Error(), "partial": report}
	}
	if body.Errors == nil {
		body.Errors = []string{}
	}
	if raw, mErr := json.Marshal(report); mErr == nil {
		run.Report = raw
	}
	return body, err
}

func processCSV(ctx context.Context, proc *importer.Processor, path, filename string) (*importer.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reopen upload: %w", err)
	}
	defer f.Close()
	return proc.ProcessSource(ctx, filename, f)
}

func processArchive(ctx context.Context, proc *importer.Processor, path, filename string) (*importer.BulkReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reopen upload: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat upload: %w", err)
	}
	return proc.ProcessArchiveReader(ctx, filename, f, info.Size())
}

// summarizeFiles drops the per-row detail from the archive breakdown.
func summarizeFiles(files []importer.FileReport) []importer.FileReport {
	out := make([]importer.FileReport, len(files))
	for i, f := range files {
		f.Report = nil
		out[i] = f
	}
	return out
}

// saveUpload copies the multipart file to the temp dir, hashing it on the way.
func (h *ImportHandler) saveUpload(file *multipart.FileHeader, runID uuid.UUID, ext string) (string, string, error) {
	src, err := file.Open()
	if err != nil {
		return "", "", errors.New("failed to open uploaded file")
	}
	defer src.Close()

	if err := os.MkdirAll(h.cfg.Upload.TempDir, 0o755); err != nil {
		return "", "", errors.New("failed to create temp directory")
	}

	tempPath := filepath.Join(h.cfg.Upload.TempDir, runID.String()+ext)
	dst, err := os.Create(tempPath)
	if err != nil {
		return "", "", errors.New("failed to create temp file")
	}

	hasher := sha256.New()
	_, copyErr := io.Copy(io.MultiWriter(dst, hasher), src)
	closeErr := dst.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tempPath)
		return "", "", errors.New("failed to save file")
	}
	return tempPath, hex.EncodeToString(hasher.Sum(nil)), nil
}

// HandleGetRun handles GET /api/v1/imports/:run_id.
func (h *ImportHandler) HandleGetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("run_id"))
	if err != nil {
		response.BadRequest(c, "invalid run_id format", nil)
		return
	}

	run, err := h.runs.GetByID(c.Request.Context(), runID)
	if err != nil {
		response.InternalError(c, fmt.Sprintf("failed to retrieve import run: %v", err))
		return
	}
	if run == nil {
		response.NotFound(c, "import run not found")
		return
	}

	response.Success(c, http.StatusOK, run)
}
