package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/research-office/research-registry/internal/api/middleware"
	"github.com/research-office/research-registry/internal/config"
	"github.com/research-office/research-registry/internal/models"
	"github.com/research-office/research-registry/internal/repository"
	"github.com/research-office/research-registry/internal/schema"
)

const projectHeader = "Titulo,Coordenador,EmailCoordenador,Inicio,Fim,Pesquisadores,Estudantes," +
	"AreaConhecimento,GrupoPesquisa,GrupoPesquisaExterno,ParceiroDemandante,CampusExecucao"

func csvOf(header string, rows ...string) string {
	return header + "\n" + strings.Join(rows, "\n") + "\n"
}

type fakeRuns struct {
	mu        sync.Mutex
	runs      map[uuid.UUID]*models.ImportRun
	createErr error
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{runs: map[uuid.UUID]*models.ImportRun{}}
}

func (f *fakeRuns) Create(_ context.Context, run *models.ImportRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *run
	f.runs[run.ID] = &cp
	return nil
}

func (f *fakeRuns) GetByID(_ context.Context, id uuid.UUID) (*models.ImportRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (f *fakeRuns) Complete(_ context.Context, run *models.ImportRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.runs[run.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *run
	f.runs[run.ID] = &cp
	return nil
}

type fakeKeys struct {
	mu   sync.Mutex
	keys map[string]repository.KeyClaim
}

func (f *fakeKeys) Claim(_ context.Context, k repository.ImportKey) (*repository.KeyClaim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys == nil {
		f.keys = map[string]repository.KeyClaim{}
	}
	id := k.Actor + "|" + k.Key
	if existing, ok := f.keys[id]; ok {
		existing.Existing = true
		return &existing, nil
	}
	claim := repository.KeyClaim{RunID: k.RunID, ContentHash: k.ContentHash, ClaimedAt: time.Now()}
	f.keys[id] = claim
	return &claim, nil
}

func (f *fakeKeys) Release(_ context.Context, actor, key string, runID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := actor + "|" + key
	if claim, ok := f.keys[id]; ok && claim.RunID == runID {
		delete(f.keys, id)
	}
	return nil
}

func (f *fakeKeys) bind(actor, key string, claim repository.KeyClaim) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys == nil {
		f.keys = map[string]repository.KeyClaim{}
	}
	f.keys[actor+"|"+key] = claim
}

type importFixture struct {
	store  *repository.MemoryStore
	runs   *fakeRuns
	keys   *fakeKeys
	router *gin.Engine
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Upload: config.UploadConfig{MaxSizeMB: 1, TempDir: t.TempDir()},
		Import: config.ImportConfig{
			Actor:             "csv-import",
			ErrorDisplayLimit: 10,
			ChangeReason:      "coordinator changed by CSV import",
		},
	}
}

func newImportFixture(t *testing.T, cfg *config.Config, actor string) *importFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &importFixture{store: repository.NewMemoryStore(), runs: newFakeRuns(), keys: &fakeKeys{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewImportHandler(f.store, f.runs, f.keys, nil, schema.Overrides{}, cfg, logger)

	r := gin.New()
	if actor != "" {
		r.Use(func(c *gin.Context) {
			c.Set(middleware.KeyActor, actor)
			c.Next()
		})
	}
	r.POST("/imports/:kind", h.HandleImport)
	r.GET("/imports/:run_id", h.HandleGetRun)
	f.router = r
	return f
}

func uploadRequest(t *testing.T, kind, filename string, content []byte, headers map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/imports/"+kind, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func (f *importFixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

type importBody struct {
	Run      models.ImportRun `json:"run"`
	Errors   []string         `json:"errors"`
	Warnings []string         `json:"warnings"`
	Files    []struct {
		Filename  string `json:"filename"`
		Successes int    `json:"successes"`
		Errors    int    `json:"errors"`
		Err       string `json:"error"`
	} `json:"files"`
}

func TestHandleImport_CSV(t *testing.T) {
	f := newImportFixture(t, testConfig(t), "Ana Lima")
	data := csvOf(projectHeader,
		"Sensores IoT,Ana Lima,ana@ufes.br,01-03-24,28-02-25,,,,,,,",
		",Ana Lima,ana@ufes.br,01-03-24,28-02-25,,,,,,,",
	)

	w := f.do(uploadRequest(t, "projects", "projetos.csv", []byte(data), nil))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	env := decode(t, w)
	var body importBody
	require.NoError(t, json.Unmarshal(env.Data, &body))

	assert.Equal(t, "projects", body.Run.Kind)
	assert.Equal(t, "projetos.csv", body.Run.Filename)
	assert.Equal(t, models.RunStatusCompleted, body.Run.Status)
	assert.Equal(t, "Ana Lima", body.Run.Actor)
	assert.Len(t, body.Run.ContentHash, 64)
	assert.Equal(t, 2, body.Run.TotalRows)
	assert.Equal(t, 1, body.Run.SuccessCount)
	assert.Equal(t, 1, body.Run.ErrorCount)
	assert.Equal(t, []string{"Row 2: required field 'Titulo' is empty"}, body.Errors)

	stored, err := f.runs.GetByID(context.Background(), body.Run.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CompletedAt)
	assert.Contains(t, string(stored.Report), `"source":"projetos.csv"`)

	assert.Len(t, f.store.Initiatives(), 1)
	failed := f.store.FailedImports()
	require.Len(t, failed, 1)
	assert.Equal(t, "projetos.csv", failed[0].Source)
	assert.Equal(t, 2, failed[0].RowNumber)
}

func TestHandleImport_ErrorPreviewCapped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Import.ErrorDisplayLimit = 2
	f := newImportFixture(t, cfg, "")

	rows := make([]string, 5)
	for i := range rows {
		rows[i] = ",Ana Lima,ana@ufes.br,01-03-24,28-02-25,,,,,,,"
	}
	w := f.do(uploadRequest(t, "projects", "p.csv", []byte(csvOf(projectHeader, rows...)), nil))
	require.Equal(t, http.StatusCreated, w.Code)

	var body importBody
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &body))
	require.Len(t, body.Errors, 3)
	assert.Equal(t, "... and 3 more errors", body.Errors[2])
	assert.Equal(t, "csv-import", body.Run.Actor)
	assert.Equal(t, 5, body.Run.ErrorCount)
}

func TestHandleImport_Zip(t *testing.T) {
	f := newImportFixture(t, testConfig(t), "")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"a.csv":     csvOf(projectHeader, "Projeto 1,Ana Lima,ana@ufes.br,01-03-24,28-02-25,,,,,,,"),
		"readme.md": "ignored",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	w := f.do(uploadRequest(t, "projects", "LOTE.ZIP", buf.Bytes(), nil))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body importBody
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &body))
	require.Len(t, body.Files, 1)
	assert.Equal(t, "a.csv", body.Files[0].Filename)
	assert.Equal(t, 1, body.Files[0].Successes)
	assert.Equal(t, 1, body.Run.SuccessCount)
	assert.Empty(t, body.Errors)
}

func TestHandleImport_IdempotencyKey(t *testing.T) {
	f := newImportFixture(t, testConfig(t), "")
	data := []byte(csvOf(projectHeader, "Projeto 1,Ana Lima,ana@ufes.br,01-03-24,28-02-25,,,,,,,"))
	headers := map[string]string{"Idempotency-Key": "batch-2024-03"}

	first := f.do(uploadRequest(t, "projects", "p.csv", data, headers))
	require.Equal(t, http.StatusCreated, first.Code)
	var created importBody
	require.NoError(t, json.Unmarshal(decode(t, first).Data, &created))
	require.NotNil(t, created.Run.IdempotencyKey)
	assert.Equal(t, "batch-2024-03", *created.Run.IdempotencyKey)

	second := f.do(uploadRequest(t, "projects", "p.csv", data, headers))
	require.Equal(t, http.StatusConflict, second.Code)
	env := decode(t, second)
	require.NotNil(t, env.Error)
	assert.Equal(t, "DUPLICATE_REQUEST", env.Error.Code)

	var existing models.ImportRun
	require.NoError(t, json.Unmarshal(env.Data, &existing))
	assert.Equal(t, created.Run.ID, existing.ID)
	assert.Len(t, f.store.Initiatives(), 1)
}

func TestHandleImport_RejectedUploadLeavesKeyFree(t *testing.T) {
	f := newImportFixture(t, testConfig(t), "")
	data := []byte(csvOf(projectHeader, "Projeto 1,Ana Lima,ana@ufes.br,01-03-24,28-02-25,,,,,,,"))
	headers := map[string]string{"Idempotency-Key": "k1"}

	w := f.do(uploadRequest(t, "projects", "notes.txt", data, headers))
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(uploadRequest(t, "projects", "", nil, headers))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(uploadRequest(t, "projects", "p.csv", data, headers))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var body importBody
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &body))
	assert.Equal(t, 1, body.Run.SuccessCount)
}

func TestHandleImport_KeyReusedForDifferentFile(t *testing.T) {
	f := newImportFixture(t, testConfig(t), "")
	headers := map[string]string{"Idempotency-Key": "k1"}

	first := f.do(uploadRequest(t, "projects", "p.csv",
		[]byte(csvOf(projectHeader, "Projeto 1,Ana Lima,ana@ufes.br,01-03-24,28-02-25,,,,,,,")), headers))
	require.Equal(t, http.StatusCreated, first.Code)

	second := f.do(uploadRequest(t, "projects", "p.csv",
		[]byte(csvOf(projectHeader, "Projeto 2,Ana Lima,ana@ufes.br,01-03-24,28-02-25,,,,,,,")), headers))
	require.Equal(t, http.StatusConflict, second.Code)
	env := decode(t, second)
	assert.Contains(t, env.Error.Message, "different file")
	assert.NotEqual(t, "null", string(env.Data))
	assert.Len(t, f.store.Initiatives(), 1)
}

func TestHandleImport_StaleKeyClaim(t *testing.T) {
	data := []byte(csvOf(projectHeader, "Projeto 1,Ana Lima,ana@ufes.br,01-03-24,28-02-25,,,,,,,"))
	headers := map[string]string{"Idempotency-Key": "k1"}

	t.Run("old claim without a run is taken over", func(t *testing.T) {
		f := newImportFixture(t, testConfig(t), "")
		f.keys.bind("csv-import", "k1", repository.KeyClaim{RunID: uuid.New(), ClaimedAt: time.Now().Add(-time.Hour)})

		w := f.do(uploadRequest(t, "projects", "p.csv", data, headers))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Len(t, f.runs.runs, 1)
	})

	t.Run("fresh claim without a run is still starting", func(t *testing.T) {
		f := newImportFixture(t, testConfig(t), "")
		f.keys.bind("csv-import", "k1", repository.KeyClaim{RunID: uuid.New(), ClaimedAt: time.Now()})

		w := f.do(uploadRequest(t, "projects", "p.csv", data, headers))
		require.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, decode(t, w).Error.Message, "is starting")
		assert.Empty(t, f.runs.runs)
	})
}

func TestHandleImport_FailedRunCreateReleasesKey(t *testing.T) {
	f := newImportFixture(t, testConfig(t), "")
	f.runs.createErr = errors.New("connection reset")
	data := []byte(csvOf(projectHeader, "Projeto 1,Ana Lima,ana@ufes.br,01-03-24,28-02-25,,,,,,,"))
	headers := map[string]string{"Idempotency-Key": "k1"}

	w := f.do(uploadRequest(t, "projects", "p.csv", data, headers))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, f.keys.keys)

	f.runs.createErr = nil
	w = f.do(uploadRequest(t, "projects", "p.csv", data, headers))
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestHandleImport_RejectsBadRequests(t *testing.T) {
	f := newImportFixture(t, testConfig(t), "")
	data := []byte(csvOf(projectHeader))

	tests := []struct {
		name     string
		req      *http.Request
		wantCode int
	}{
		{"unknown kind", uploadRequest(t, "people", "p.csv", data, nil), http.StatusBadRequest},
		{"missing file", uploadRequest(t, "projects", "", nil, nil), http.StatusBadRequest},
		{"wrong extension", uploadRequest(t, "projects", "p.xlsx", data, nil), http.StatusBadRequest},
		{"too large", uploadRequest(t, "projects", "p.csv", bytes.Repeat([]byte("x"), 1024*1024+1), nil), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(tt.req)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Equal(t, "error", decode(t, w).Status)
		})
	}
	assert.Empty(t, f.runs.runs)
}

func TestHandleImport_UnreadableSource(t *testing.T) {
	f := newImportFixture(t, testConfig(t), "")

	w := f.do(uploadRequest(t, "groups", "vazio.csv", nil, nil))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	env := decode(t, w)
	assert.Contains(t, env.Error.Message, "CSV source is empty")
	var run models.ImportRun
	require.NoError(t, json.Unmarshal(env.Data, &run))
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, string(run.Report), "CSV source is empty")
}

func TestHandleGetRun(t *testing.T) {
	f := newImportFixture(t, testConfig(t), "")
	run := &models.ImportRun{ID: uuid.New(), Kind: "groups", Filename: "g.csv", Status: models.RunStatusCompleted}
	require.NoError(t, f.runs.Create(context.Background(), run))

	w := f.do(httptest.NewRequest(http.MethodGet, "/imports/"+run.ID.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got models.ImportRun
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "g.csv", got.Filename)

	w = f.do(httptest.NewRequest(http.MethodGet, "/imports/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/imports/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
