package carterahttp

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/cartera-ar/cartera/internal/cartera"
	"github.com/cartera-ar/cartera/internal/runs"
	"github.com/cartera-ar/cartera/internal/shared"
	"github.com/cartera-ar/cartera/jobs"
)

const provcaSample = `PCCDEM;PCCDAC;PCCDCL;PCNMCL;PCNMCM;PCNUFC;PCFEFA;PCFEVE;PCSALD
PL;15;C001;ACME SAS;ACME;F-001;20251103;20250827;1.000.000,00
`

const clantiSample = `NCCDEM;NCCDAC;NCCDCL;WWNMCL;NCCDR3;NCIMAN;NCFEGR
PL;15;C001;ACME;A-001;200.000,00;20251120
`

type memStore struct {
	mu   sync.Mutex
	runs map[string]*runs.Run
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[string]*runs.Run)}
}

func (m *memStore) Create(_ context.Context, input runs.CreateInput) (*runs.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := &runs.Run{
		ID:          input.ID,
		Status:      runs.StatusPending,
		ClosingDate: input.ClosingDate,
		Policy:      input.Policy,
		CreatedAt:   time.Now(),
	}
	m.runs[input.ID] = run
	return run, nil
}

func (m *memStore) MarkRunning(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return runs.ErrNotFound
	}
	run.Status = runs.StatusRunning
	return nil
}

func (m *memStore) Complete(_ context.Context, id string, input runs.CompleteInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return runs.ErrNotFound
	}
	run.Status = runs.StatusCompleted
	run.ClosingDate = input.ClosingDate
	run.InvoiceCount = input.InvoiceCount
	run.AdvanceCount = input.AdvanceCount
	run.RowCount = input.RowCount
	run.ViolationCount = input.ViolationCount
	run.TotalBalance = input.TotalBalance
	run.TotalOverdue = input.TotalOverdue
	run.TotalProvision = input.TotalProvision
	run.Rates = input.Rates
	run.Artifacts = input.Artifacts
	run.FinishedAt = time.Now()
	return nil
}

func (m *memStore) Fail(_ context.Context, id string, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return runs.ErrNotFound
	}
	run.Status = runs.StatusFailed
	if cause != nil {
		run.Error = cause.Error()
	}
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*runs.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, runs.ErrNotFound
	}
	copied := *run
	return &copied, nil
}

func (m *memStore) List(_ context.Context, limit int) ([]runs.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]runs.Run, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, *run)
	}
	return out, nil
}

type stubRates struct {
	rates map[string]map[string]float64
	saved map[string]map[string]float64
}

func (s *stubRates) RatesFor(_ context.Context, date time.Time) (map[string]float64, error) {
	if r, ok := s.rates[date.Format(dateLayout)]; ok {
		return r, nil
	}
	return nil, shared.ErrNotFound
}

func (s *stubRates) Save(_ context.Context, date time.Time, rates map[string]float64) error {
	if s.saved == nil {
		s.saved = make(map[string]map[string]float64)
	}
	s.saved[date.Format(dateLayout)] = rates
	return nil
}

func (s *stubRates) Dates(_ context.Context) ([]time.Time, error) {
	out := make([]time.Time, 0, len(s.rates))
	for key := range s.rates {
		d, _ := time.Parse(dateLayout, key)
		out = append(out, d)
	}
	return out, nil
}

type stubQueue struct {
	payloads []jobs.DebtModelBuildPayload
}

func (s *stubQueue) EnqueueDebtModelBuild(_ context.Context, payload jobs.DebtModelBuildPayload) (*asynq.TaskInfo, error) {
	s.payloads = append(s.payloads, payload)
	return &asynq.TaskInfo{}, nil
}

func newTestRouter(t *testing.T, queue enqueuer) (*chi.Mux, *memStore, *stubRates) {
	t.Helper()
	store := newMemStore()
	engine := cartera.NewEngine(nil, nil, nil, nil)
	svc := runs.NewService(store, engine, t.TempDir(), nil)
	rates := &stubRates{rates: map[string]map[string]float64{}}

	handler := NewHandler(nil, svc, rates, nil, queue, Config{UploadDir: t.TempDir()})
	r := chi.NewRouter()
	r.Route("/cartera", handler.MountRoutes)
	return r, store, rates
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for name, value := range fields {
		require.NoError(t, mw.WriteField(name, value))
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile(name, name+".csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func TestCreateRunSync(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	body, contentType := multipartBody(t,
		map[string]string{"policy": "UNION"},
		map[string]string{"provca": provcaSample, "clanti": clantiSample})
	req := httptest.NewRequest(http.MethodPost, "/cartera/runs", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)

	var resp runResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "COMPLETED", resp.Run.Status)
	require.Equal(t, "2025-11-30", resp.Run.ClosingDate)
	require.Equal(t, 1, resp.Run.InvoiceCount)
	require.Equal(t, 1, resp.Run.AdvanceCount)
	require.InDelta(t, 800_000.0, resp.Run.TotalBalance, cartera.ReconcileTolerance)
	require.Len(t, resp.Totals, 1)
	require.Equal(t, "COP", resp.Totals[0].Currency)
	require.Empty(t, resp.Violations)
}

func TestCreateRunSyncMissingRateRejected(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	usdOnly := `PCCDEM;PCCDAC;PCNUFC;PCFEFA;PCFEVE;PCSALD
PL;11;F-001;20251110;20251220;1000
`
	body, contentType := multipartBody(t, nil, map[string]string{"provca": usdOnly})
	req := httptest.NewRequest(http.MethodPost, "/cartera/runs", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "USD")
}

func TestCreateRunSyncRateOverride(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	usdOnly := `PCCDEM;PCCDAC;PCNUFC;PCFEFA;PCFEVE;PCSALD
PL;11;F-001;20251110;20251220;1000
`
	body, contentType := multipartBody(t,
		map[string]string{"rate_usd": "4.000,50"},
		map[string]string{"provca": usdOnly})
	req := httptest.NewRequest(http.MethodPost, "/cartera/runs", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)

	var resp runResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 4000.5, resp.Run.Rates["USD"])
}

func TestCreateRunRequiresProvca(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	body, contentType := multipartBody(t, map[string]string{"policy": "UNION"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/cartera/runs", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "provca")
}

func TestCreateRunRejectsUnknownPolicy(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	body, contentType := multipartBody(t,
		map[string]string{"policy": "MIXED"},
		map[string]string{"provca": provcaSample})
	req := httptest.NewRequest(http.MethodPost, "/cartera/runs", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateRunAsyncEnqueues(t *testing.T) {
	queue := &stubQueue{}
	router, store, _ := newTestRouter(t, queue)

	body, contentType := multipartBody(t,
		map[string]string{"async": "true", "policy": "COMPENSATE", "closing_date": "2025-11-30"},
		map[string]string{"provca": provcaSample})
	req := httptest.NewRequest(http.MethodPost, "/cartera/runs", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, queue.payloads, 1)

	payload := queue.payloads[0]
	require.Equal(t, "COMPENSATE", payload.Policy)
	require.Equal(t, "2025-11-30", payload.ClosingDate)
	require.NotEmpty(t, payload.ProvcaPath)

	stored, err := store.Get(context.Background(), payload.RunID)
	require.NoError(t, err)
	require.Equal(t, runs.StatusPending, stored.Status)
}

func TestCreateRunAsyncWithoutQueue(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	body, contentType := multipartBody(t,
		map[string]string{"async": "true"},
		map[string]string{"provca": provcaSample})
	req := httptest.NewRequest(http.MethodPost, "/cartera/runs", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestGetRunNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/cartera/runs/nope", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDownloadArtifact(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	body, contentType := multipartBody(t, nil, map[string]string{"provca": provcaSample})
	req := httptest.NewRequest(http.MethodPost, "/cartera/runs", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp runResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Contains(t, resp.Run.Artifacts, "modelo_deuda")

	dl := httptest.NewRequest(http.MethodGet, "/cartera/runs/"+resp.Run.ID+"/artifacts/modelo_deuda", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, dl)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "NEGOCIO")
}

func TestTRMRoundTrip(t *testing.T) {
	router, _, rates := newTestRouter(t, nil)

	put := httptest.NewRequest(http.MethodPut, "/cartera/trm/2025-10-31",
		strings.NewReader(`{"rates":{"USD":"4.000,50","EUR":"4400"}}`))
	put.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, put)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 4000.5, rates.saved["2025-10-31"]["USD"])
	require.Equal(t, 4400.0, rates.saved["2025-10-31"]["EUR"])

	rates.rates["2025-10-31"] = rates.saved["2025-10-31"]
	get := httptest.NewRequest(http.MethodGet, "/cartera/trm/2025-10-31", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, get)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "4000.5")
}

func TestTRMGetMissingDate(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/cartera/trm/2020-01-31", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTRMPutRejectsNonPositive(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPut, "/cartera/trm/2025-10-31",
		strings.NewReader(`{"rates":{"USD":"-5"}}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}
