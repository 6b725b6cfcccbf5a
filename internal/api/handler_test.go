package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"workload-orchestrator/internal/apperrors"
	"workload-orchestrator/internal/health"
	"workload-orchestrator/internal/workload"
	"workload-orchestrator/internal/workloadapi"

	"github.com/google/uuid"
)

const (
	testCatalogueID = "6f1f5b7e-3c2a-4d43-9a0e-2f3a1b4c5d6e"
	testWorkloadID  = "a1b2c3d4-e5f6-4a7b-8c9d-0e1f2a3b4c5d"
	testVersionID   = "0b7e2d4c-1f3a-4e5b-8c6d-7e8f9a0b1c2d"
)

// stubAPI is a workload.API backed by fixed data.
type stubAPI struct {
	mu        sync.Mutex
	workloads []workload.WorkloadSummary
	tasks     map[string]workload.Task
	callErr   error
	creates   int
	deletes   []uuid.UUID
	readyErr  error
}

func (s *stubAPI) CreateWorkload(context.Context, *workload.CreateWorkloadRequest) (workload.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.callErr != nil {
		return nil, s.callErr
	}
	s.creates++
	return workload.Response{"TaskId": "task-create", "WorkloadId": "wl-1"}, nil
}

func (s *stubAPI) UpdateWorkload(context.Context, uuid.UUID, uuid.UUID) (workload.Response, error) {
	if s.callErr != nil {
		return nil, s.callErr
	}
	return workload.Response{"TaskId": "task-update"}, nil
}

func (s *stubAPI) DeleteWorkload(_ context.Context, id uuid.UUID) (workload.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.callErr != nil {
		return nil, s.callErr
	}
	s.deletes = append(s.deletes, id)
	return workload.Response{"TaskId": "task-delete"}, nil
}

func (s *stubAPI) ListWorkloads(context.Context, string) (*workload.WorkloadPage, error) {
	return &workload.WorkloadPage{Workloads: s.workloads}, nil
}

func (s *stubAPI) ReadTask(_ context.Context, taskID string) (workload.Task, error) {
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, &workloadapi.APIError{StatusCode: http.StatusNotFound, Method: http.MethodGet, Path: "/tasks/" + taskID}
	}
	return task, nil
}

func (s *stubAPI) CreateCatalogueItem(context.Context, *workload.Catalogue) (workload.Response, error) {
	return workload.Response{"TaskId": "task-catalogue"}, nil
}

func (s *stubAPI) CreateCatalogueVersion(context.Context, uuid.UUID, *workload.Catalogue) (workload.Response, error) {
	return workload.Response{"TaskId": "task-version"}, nil
}

func (s *stubAPI) Ready(context.Context) error { return s.readyErr }

type stubHeartbeater struct {
	mu     sync.Mutex
	tokens [][]string
}

func (s *stubHeartbeater) SendHeartbeats(_ context.Context, tokens []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, tokens)
	return true
}

func newTestRouter(api *stubAPI, hb Heartbeater) http.Handler {
	return NewRouter(RouterConfig{
		Service:       workload.NewService(api, nil, nil),
		Heartbeats:    hb,
		HealthChecker: health.NewChecker(api),
		APIKey:        "test-key",
	})
}

func post(t *testing.T, h http.Handler, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer test-key")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func createBody() map[string]any {
	return map[string]any{
		"aws_account_id": "123456789012",
		"aws_region":     "ap-southeast-2",
		"catalogue_id":   testCatalogueID,
		"workload_name":  "foo",
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

func TestHandler_Readyz(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		api  health.ReadinessChecker
		want int
	}{
		{"no workload api", nil, http.StatusServiceUnavailable},
		{"workload api down", &stubAPI{readyErr: errors.New("dial tcp: refused")}, http.StatusServiceUnavailable},
		{"workload api up", &stubAPI{}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			handler := &Handler{health: health.NewChecker(tt.api)}

			req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
			w := httptest.NewRecorder()

			handler.Readyz(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestStage_Validate(t *testing.T) {
	t.Parallel()
	router := newTestRouter(&stubAPI{}, nil)

	body := createBody()
	body["operation"] = "create"
	body["workload_tags"] = map[string]any{"team": "platform"}
	w, out := post(t, router, "/v1/stages/validate", body)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if out["workload_name"] != "foo" {
		t.Errorf("workload_name = %v", out["workload_name"])
	}
	for _, absent := range []string{"catalogue_version_id", "workload_parameters"} {
		if _, ok := out[absent]; ok {
			t.Errorf("Expected %s to be omitted, got %v", absent, out[absent])
		}
	}
}

func TestStage_ValidateErrors(t *testing.T) {
	t.Parallel()
	router := newTestRouter(&stubAPI{}, nil)

	tests := []struct {
		name      string
		body      any
		wantCode  int
		wantType  string
		wantField string
	}{
		{"missing field", map[string]any{"operation": "delete"}, http.StatusBadRequest, apperrors.TypeMissingRequiredInput, "workload_id"},
		{"missing operation", map[string]any{}, http.StatusBadRequest, apperrors.TypeMissingRequiredInput, "operation"},
		{"unsupported operation", map[string]any{"operation": "restart"}, http.StatusBadRequest, apperrors.TypeUnsupportedOperation, "operation"},
		{"malformed uuid", map[string]any{"operation": "delete", "workload_id": "nope"}, http.StatusBadRequest, apperrors.TypeValidation, "workload_id"},
		{"not an object", []string{"a"}, http.StatusBadRequest, apperrors.TypeValidation, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w, out := post(t, router, "/v1/stages/validate", tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, w.Code)
			}
			if out["errorType"] != tt.wantType {
				t.Errorf("errorType = %v, want %s", out["errorType"], tt.wantType)
			}
			if out["field"] != tt.wantField {
				t.Errorf("field = %v, want %s", out["field"], tt.wantField)
			}
			if out["error"] == "" {
				t.Error("Expected error message")
			}
		})
	}
}

func TestStage_CreateWorkload(t *testing.T) {
	t.Parallel()
	api := &stubAPI{}
	router := newTestRouter(api, nil)

	w, out := post(t, router, "/v1/stages/create-workload", createBody())

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if out["TaskId"] != "task-create" {
		t.Errorf("TaskId = %v", out["TaskId"])
	}
	if api.creates != 1 {
		t.Errorf("Expected 1 create, got %d", api.creates)
	}
}

func TestStage_CreateWorkload_Collision(t *testing.T) {
	t.Parallel()
	api := &stubAPI{workloads: []workload.WorkloadSummary{{ID: "w", Name: "foo", Status: workload.WorkloadStatusActive}}}
	router := newTestRouter(api, nil)

	w, out := post(t, router, "/v1/stages/create-workload", createBody())

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status %d, got %d", http.StatusConflict, w.Code)
	}
	if out["errorType"] != apperrors.TypeWorkloadNameCollision {
		t.Errorf("errorType = %v", out["errorType"])
	}
	if api.creates != 0 {
		t.Errorf("Expected no create, got %d", api.creates)
	}
}

func TestStage_UpdateAndDelete(t *testing.T) {
	t.Parallel()
	api := &stubAPI{}
	router := newTestRouter(api, nil)

	w, out := post(t, router, "/v1/stages/update-workload", map[string]any{
		"workload_id":          testWorkloadID,
		"catalogue_version_id": testVersionID,
	})
	if w.Code != http.StatusOK || out["TaskId"] != "task-update" {
		t.Errorf("update: status %d body %v", w.Code, out)
	}

	w, out = post(t, router, "/v1/stages/delete-workload", map[string]any{"workload_id": testWorkloadID})
	if w.Code != http.StatusOK || out["TaskId"] != "task-delete" {
		t.Errorf("delete: status %d body %v", w.Code, out)
	}
	if len(api.deletes) != 1 || api.deletes[0].String() != testWorkloadID {
		t.Errorf("deletes = %v", api.deletes)
	}

	w, out = post(t, router, "/v1/stages/dispatch", map[string]any{"operation": "delete", "workload_id": testWorkloadID})
	if w.Code != http.StatusOK || out["TaskId"] != "task-delete" {
		t.Errorf("dispatch: status %d body %v", w.Code, out)
	}
}

func TestStage_UpstreamError(t *testing.T) {
	t.Parallel()
	api := &stubAPI{callErr: &workloadapi.APIError{StatusCode: http.StatusForbidden, Method: "DELETE", Path: "/workloads/x", Message: "denied"}}
	router := newTestRouter(api, nil)

	w, out := post(t, router, "/v1/stages/delete-workload", map[string]any{"workload_id": testWorkloadID})

	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected status %d, got %d", http.StatusBadGateway, w.Code)
	}
	if out["errorType"] != TypeUpstream {
		t.Errorf("errorType = %v", out["errorType"])
	}
	if out["upstreamStatus"] != float64(http.StatusForbidden) {
		t.Errorf("upstreamStatus = %v", out["upstreamStatus"])
	}
}

func TestStage_TaskStatus(t *testing.T) {
	t.Parallel()
	api := &stubAPI{tasks: map[string]workload.Task{"t-1": {"TaskId": "t-1", "Status": "IN_PROGRESS"}}}
	router := newTestRouter(api, nil)

	w, out := post(t, router, "/v1/stages/task-status", map[string]any{"task_id": "t-1", "workload_name": "foo"})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if out["workload_name"] != "foo" {
		t.Error("Expected request fields to be echoed back")
	}
	info, ok := out["task_info"].(map[string]any)
	if !ok || info["Status"] != "IN_PROGRESS" {
		t.Errorf("task_info = %v", out["task_info"])
	}
}

func TestStage_TaskStatus_NotFound(t *testing.T) {
	t.Parallel()
	router := newTestRouter(&stubAPI{}, nil)

	w, out := post(t, router, "/v1/stages/task-status", map[string]any{"task_id": "missing"})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if out["errorType"] != apperrors.TypeTaskNotFound {
		t.Errorf("errorType = %v", out["errorType"])
	}

	w, out = post(t, router, "/v1/stages/task-status", map[string]any{})
	if w.Code != http.StatusBadRequest || out["errorType"] != apperrors.TypeMissingRequiredInput {
		t.Errorf("missing task_id: status %d body %v", w.Code, out)
	}
}

func TestStage_TaskWatch(t *testing.T) {
	t.Parallel()
	api := &stubAPI{tasks: map[string]workload.Task{"t-1": {"TaskId": "t-1", "Status": "SUCCEEDED"}}}
	hb := &stubHeartbeater{}
	router := newTestRouter(api, hb)

	w, out := post(t, router, "/v1/stages/task-watch", map[string]any{
		"task_id":         "t-1",
		"callback_tokens": []string{"a", "b"},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	status, ok := out["task_status"].(map[string]any)
	if !ok || status["Status"] != "SUCCEEDED" {
		t.Errorf("task_status = %v", out["task_status"])
	}
	if len(hb.tokens) != 1 || len(hb.tokens[0]) != 2 {
		t.Errorf("heartbeats = %v", hb.tokens)
	}

	w, out = post(t, router, "/v1/stages/task-watch", map[string]any{"task_id": "t-1", "callback_tokens": []any{1}})
	if w.Code != http.StatusBadRequest || out["field"] != "callback_tokens" {
		t.Errorf("bad tokens: status %d body %v", w.Code, out)
	}
}

func TestStage_Heartbeats(t *testing.T) {
	t.Parallel()
	hb := &stubHeartbeater{}
	router := newTestRouter(&stubAPI{}, hb)

	w, out := post(t, router, "/v1/stages/heartbeats", map[string]any{"callback_tokens": []string{"a", "b", "c"}})
	if w.Code != http.StatusOK || out["ok"] != true {
		t.Errorf("status %d body %v", w.Code, out)
	}
	if len(hb.tokens) != 1 || len(hb.tokens[0]) != 3 {
		t.Errorf("heartbeats = %v", hb.tokens)
	}

	noSender := newTestRouter(&stubAPI{}, nil)
	w, _ = post(t, noSender, "/v1/stages/heartbeats", map[string]any{"callback_tokens": []string{"a"}})
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestStage_CatalogueWithoutStore(t *testing.T) {
	t.Parallel()
	router := newTestRouter(&stubAPI{}, nil)

	w, out := post(t, router, "/v1/catalogues", map[string]any{"bucket": "b"})
	if w.Code != http.StatusBadRequest || out["errorType"] != apperrors.TypeMissingRequiredInput {
		t.Errorf("status %d body %v", w.Code, out)
	}

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "web.yaml"), []byte("Resources: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	router = NewRouter(RouterConfig{
		Service:       workload.NewService(&stubAPI{}, nil, nil),
		HealthChecker: health.NewChecker(&stubAPI{}),
		APIKey:        "test-key",
		ManifestRoot:  root,
	})
	w, _ = post(t, router, "/v1/catalogues", map[string]any{"bucket": "b", "catalogue_name": "web", "manifest_path": "web.yaml"})
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

// recordingStore is a workload.ObjectStore that remembers uploaded paths.
type recordingStore struct {
	mu    sync.Mutex
	paths []string
}

func (s *recordingStore) Put(_ context.Context, bucket, localPath, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, localPath)
	return "s3://" + bucket + "/" + key, nil
}

func (s *recordingStore) uploads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

func newCatalogueRouter(t *testing.T, root string) (http.Handler, *recordingStore) {
	t.Helper()
	store := &recordingStore{}
	api := &stubAPI{}
	return NewRouter(RouterConfig{
		Service:       workload.NewService(api, store, nil),
		HealthChecker: health.NewChecker(api),
		APIKey:        "test-key",
		ManifestRoot:  root,
	}), store
}

func TestStage_CatalogueManifestConfinedToRoot(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	root := filepath.Join(base, "manifests")
	if err := os.MkdirAll(root, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "web.yaml"), []byte("Resources: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	outside := filepath.Join(base, "credentials")
	if err := os.WriteFile(outside, []byte("secret"), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, manifestPath := range []string{
		"../credentials",
		"./../credentials",
		outside,
		"/etc/passwd",
	} {
		t.Run(manifestPath, func(t *testing.T) {
			t.Parallel()
			router, store := newCatalogueRouter(t, root)

			w, out := post(t, router, "/v1/catalogues", map[string]any{
				"bucket": "b", "catalogue_name": "web", "manifest_path": manifestPath,
			})
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
			if out["errorType"] != apperrors.TypeValidation {
				t.Errorf("Expected errorType %q, got %v", apperrors.TypeValidation, out["errorType"])
			}
			if got := store.uploads(); len(got) != 0 {
				t.Errorf("Expected no uploads, got %v", got)
			}
		})
	}

	router, store := newCatalogueRouter(t, root)
	w, out := post(t, router, "/v1/catalogues", map[string]any{
		"bucket": "b", "catalogue_name": "web", "manifest_path": "web.yaml",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %v", http.StatusOK, w.Code, out)
	}
	rootReal, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatal(err)
	}
	if got := store.uploads(); len(got) != 1 || got[0] != filepath.Join(rootReal, "web.yaml") {
		t.Errorf("Expected upload of %s, got %v", filepath.Join(rootReal, "web.yaml"), got)
	}
}

func TestStage_CatalogueDisabledWithoutManifestRoot(t *testing.T) {
	t.Parallel()
	router, store := newCatalogueRouter(t, "")

	w, out := post(t, router, "/v1/catalogues", map[string]any{
		"bucket": "b", "catalogue_name": "web", "manifest_path": "web.yaml",
	})
	if w.Code != http.StatusBadRequest || out["errorType"] != apperrors.TypeValidation {
		t.Errorf("status %d body %v", w.Code, out)
	}
	if got := store.uploads(); len(got) != 0 {
		t.Errorf("Expected no uploads, got %v", got)
	}
}

func TestRouter_ReadEndpoints(t *testing.T) {
	t.Parallel()
	api := &stubAPI{
		workloads: []workload.WorkloadSummary{{ID: "w-1", Name: "foo", Status: "ACTIVE"}},
		tasks:     map[string]workload.Task{"t-1": {"TaskId": "t-1", "Status": "PENDING"}},
	}
	router := newTestRouter(api, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/workloads", nil)
	req.Header.Set("Authorization", "Bearer test-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list: Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var list struct {
		Workloads []workload.WorkloadSummary `json:"workloads"`
	}
	json.NewDecoder(w.Body).Decode(&list)
	if len(list.Workloads) != 1 || list.Workloads[0].Name != "foo" {
		t.Errorf("workloads = %v", list.Workloads)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/tasks/t-1", nil)
	req.Header.Set("Authorization", "Bearer test-key")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("task: Expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestRouter_RequiresAuth(t *testing.T) {
	t.Parallel()
	router := newTestRouter(&stubAPI{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/stages/validate", bytes.NewBufferString("{}"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}
