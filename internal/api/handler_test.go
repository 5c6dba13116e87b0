package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"laserops/internal/health"
	"laserops/internal/job"
	"laserops/internal/machine"
)

type okSender struct{}

func (okSender) Send(ctx context.Context, m *machine.Machine, j *job.Job) error { return nil }

type failSender struct{ err error }

func (s failSender) Send(ctx context.Context, m *machine.Machine, j *job.Job) error { return s.err }

type onlineProber struct{}

func (onlineProber) Probe(ctx context.Context, m *machine.Machine) (machine.ProbeResult, error) {
	return machine.ProbeResult{Online: true, Firmware: "1.1h"}, nil
}

func newTestRouter(t *testing.T, sender job.Sender, apiKey string) http.Handler {
	t.Helper()
	registry := machine.NewRegistry(machine.NewMemoryStore(), onlineProber{}, nil, nil)
	store := job.NewMemoryStore()
	svc := job.NewService(store, registry, sender, nil, nil)
	return NewRouter(RouterConfig{
		JobService:      svc,
		MachineRegistry: registry,
		HealthChecker:   health.NewChecker(store),
		APIKey:          apiKey,
	})
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBufferString("")
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createTestMachine(t *testing.T, router http.Handler) string {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/v1/machines",
		`{"name":"shop-co2","family":"co2","connectionType":"manual","bedWidthMm":300,"bedHeightMm":200,"maxSpeedMmSec":50,"hourlyRate":36}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("machine create: status %d body %s", w.Code, w.Body.String())
	}
	var m machine.Machine
	if err := json.NewDecoder(w.Body).Decode(&m); err != nil {
		t.Fatalf("decode machine: %v", err)
	}
	return m.ID
}

func createTestJob(t *testing.T, router http.Handler, machineID string) string {
	t.Helper()
	body := `{"machineId":"` + machineID + `","name":"coaster batch","artifacts":{"cutUrl":"https://files.local/coaster.svg"},"widthMm":100,"heightMm":100,"speedMmSec":20,"powerPct":80}`
	w := doJSON(t, router, http.MethodPost, "/v1/jobs", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("job create: status %d body %s", w.Code, w.Body.String())
	}
	var j job.Job
	if err := json.NewDecoder(w.Body).Decode(&j); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	return j.ID
}

func TestRouter_JobLifecycle(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, okSender{}, "")
	machineID := createTestMachine(t, router)
	jobID := createTestJob(t, router, machineID)

	w := doJSON(t, router, http.MethodGet, "/v1/jobs/"+jobID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get: status %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/v1/jobs/"+jobID+"/send", "")
	if w.Code != http.StatusOK {
		t.Fatalf("send: status %d body %s", w.Code, w.Body.String())
	}
	var sent job.Job
	json.NewDecoder(w.Body).Decode(&sent)
	if sent.Status != job.StatusQueued {
		t.Errorf("status after send = %s, want QUEUED", sent.Status)
	}

	w = doJSON(t, router, http.MethodPost, "/v1/jobs/"+jobID+"/progress", `{"progressPct":35.5,"status":"CUTTING"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("progress: status %d body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodPost, "/v1/jobs/"+jobID+"/cancel", "")
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: status %d body %s", w.Code, w.Body.String())
	}

	// Second cancel is a state conflict
	w = doJSON(t, router, http.MethodPost, "/v1/jobs/"+jobID+"/cancel", "")
	if w.Code != http.StatusConflict {
		t.Errorf("double cancel: status %d, want 409", w.Code)
	}
}

func TestRouter_SendFailureReturnsJobState(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, failSender{err: errors.New("bridge not responding")}, "")
	machineID := createTestMachine(t, router)
	jobID := createTestJob(t, router, machineID)

	w := doJSON(t, router, http.MethodPost, "/v1/jobs/"+jobID+"/send", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("failed send: status %d, want 502", w.Code)
	}

	var resp struct {
		Error string  `json:"error"`
		Job   job.Job `json:"job"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(resp.Error, "bridge not responding") {
		t.Errorf("error = %q", resp.Error)
	}
	if resp.Job.RetryCount != 1 || resp.Job.Status != job.StatusDraft {
		t.Errorf("job state = %d/%s, want 1/DRAFT", resp.Job.RetryCount, resp.Job.Status)
	}
	if resp.Job.ErrorCode != job.ErrCodeSendFailed {
		t.Errorf("errorCode = %q", resp.Job.ErrorCode)
	}
}

func TestRouter_CreateJob_ValidationError(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, okSender{}, "")
	machineID := createTestMachine(t, router)

	body := `{"machineId":"` + machineID + `","name":"","artifacts":{"cutUrl":"x"},"widthMm":100,"heightMm":100}`
	w := doJSON(t, router, http.MethodPost, "/v1/jobs", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRouter_UnknownJob(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, okSender{}, "")

	w := doJSON(t, router, http.MethodGet, "/v1/jobs/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRouter_MachinePing(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, okSender{}, "")
	machineID := createTestMachine(t, router)

	w := doJSON(t, router, http.MethodPost, "/v1/machines/"+machineID+"/ping", "")
	if w.Code != http.StatusOK {
		t.Fatalf("ping: status %d body %s", w.Code, w.Body.String())
	}
	var m machine.Machine
	json.NewDecoder(w.Body).Decode(&m)
	if m.ConnectionStatus != machine.StatusOnline {
		t.Errorf("status = %s, want online", m.ConnectionStatus)
	}
	if m.FirmwareVersion != "1.1h" {
		t.Errorf("firmware = %q", m.FirmwareVersion)
	}
}

func TestRouter_Auth(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, okSender{}, "secret-key")

	// Health endpoints stay open
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("livez without auth: status %d", w.Code)
	}

	// API without credentials is rejected
	w = doJSON(t, router, http.MethodGet, "/v1/jobs", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no auth: status %d, want 401", w.Code)
	}

	// Wrong key is rejected
	req = httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status %d, want 401", w.Code)
	}

	// Correct key passes
	req = httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid key: status %d, want 200", w.Code)
	}
}

func TestHandler_Livez(t *testing.T) {
	t.Parallel()
	handler := &Handler{
		health: health.NewChecker(nil),
	}

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()

	handler.Livez(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response health.Response
	json.NewDecoder(w.Body).Decode(&response)

	if response.Status != health.StatusHealthy {
		t.Errorf("Expected status healthy, got %s", response.Status)
	}
}

func TestHandler_Readyz_NoStore(t *testing.T) {
	t.Parallel()
	handler := &Handler{
		health: health.NewChecker(nil), // No store configured
	}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	handler.Readyz(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	var response health.Response
	json.NewDecoder(w.Body).Decode(&response)

	if response.Status != health.StatusUnhealthy {
		t.Errorf("Expected status unhealthy, got %s", response.Status)
	}
}

func TestHandler_CreateJob_InvalidJSON(t *testing.T) {
	t.Parallel()
	handler := &Handler{}

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewBufferString("invalid json"))
	w := httptest.NewRecorder()

	handler.CreateJob(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestHandler_CreateJob_EmptyBody(t *testing.T) {
	t.Parallel()
	handler := &Handler{}

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewBufferString(""))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.CreateJob(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestHandler_GetJob_EmptyID(t *testing.T) {
	t.Parallel()
	handler := &Handler{}

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/", nil)
	w := httptest.NewRecorder()

	handler.GetJob(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestMiddleware_Logging(t *testing.T) {
	t.Parallel()
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	handler := LoggingMiddleware()(inner)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !called {
		t.Error("Inner handler was not called")
	}
}

func TestMiddleware_Recovery(t *testing.T) {
	t.Parallel()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware()(inner)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	// Should not panic
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestMiddleware_ContentType(t *testing.T) {
	t.Parallel()
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	handler := ContentTypeMiddleware()(inner)

	// Test with wrong content type
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("Expected status %d, got %d", http.StatusUnsupportedMediaType, w.Code)
	}

	// Test with correct content type
	called = false
	req = httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !called {
		t.Error("Inner handler was not called")
	}
}

func TestMiddleware_ContentType_GetAllowed(t *testing.T) {
	t.Parallel()
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	handler := ContentTypeMiddleware()(inner)

	// GET requests don't need content-type
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !called {
		t.Error("Inner handler should be called for GET requests")
	}
}

func TestMiddleware_CORS(t *testing.T) {
	t.Parallel()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := CORSMiddleware()(inner)

	// Test OPTIONS preflight
	req := httptest.NewRequest(http.MethodOptions, "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}
