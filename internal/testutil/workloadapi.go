package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"workload-orchestrator/internal/workload"

	"github.com/google/uuid"
)

// WorkloadAPI is an in-memory workload API served over HTTP.
//
// Every mutating call starts a task that reports IN_PROGRESS until it has
// been read CompleteAfter times, then SUCCEEDED (or FailWith, when set).
type WorkloadAPI struct {
	Server *httptest.Server

	// Requests counts every authenticated request served.
	Requests atomic.Int64

	mu            sync.Mutex
	pageSize      int
	completeAfter int
	failWith      map[string]bool
	workloads     []workload.WorkloadSummary
	tasks         map[string]*fakeTask
	catalogues    map[string][]map[string]any
}

type fakeTask struct {
	id         string
	workloadID string
	reads      int
	onDone     func()
	failed     bool
}

// NewWorkloadAPI starts a fake API. Tasks finish on the second read and
// inventory pages hold two workloads.
func NewWorkloadAPI(tb testing.TB) *WorkloadAPI {
	tb.Helper()

	f := &WorkloadAPI{
		pageSize:      2,
		completeAfter: 2,
		failWith:      make(map[string]bool),
		tasks:         make(map[string]*fakeTask),
		catalogues:    make(map[string][]map[string]any),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /workloads", f.createWorkload)
	mux.HandleFunc("GET /workloads", f.listWorkloads)
	mux.HandleFunc("PUT /workloads/{id}", f.updateWorkload)
	mux.HandleFunc("DELETE /workloads/{id}", f.deleteWorkload)
	mux.HandleFunc("GET /tasks/{id}", f.readTask)
	mux.HandleFunc("POST /workloads/catalogue", f.createCatalogue)
	mux.HandleFunc("POST /workloads/catalogue/{id}/versions", f.createCatalogueVersion)

	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"Error": "missing bearer token"})
			return
		}
		f.Requests.Add(1)
		mux.ServeHTTP(w, r)
	}))
	tb.Cleanup(f.Server.Close)
	return f
}

// URL is the base URL of the fake.
func (f *WorkloadAPI) URL() string { return f.Server.URL }

// SetCompleteAfter sets how many reads a task needs before it finishes.
func (f *WorkloadAPI) SetCompleteAfter(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeAfter = n
}

// FailWorkload makes tasks acting on the named workload finish FAILED.
func (f *WorkloadAPI) FailWorkload(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith[name] = true
}

// AddWorkload seeds the inventory and returns the new workload's id.
func (f *WorkloadAPI) AddWorkload(name, status string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.workloads = append(f.workloads, workload.WorkloadSummary{ID: id, Name: name, Status: status})
	return id
}

// Workload returns the inventory entry with id.
func (f *WorkloadAPI) Workload(id string) (workload.WorkloadSummary, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.workloads {
		if w.ID == id {
			return w, true
		}
	}
	return workload.WorkloadSummary{}, false
}

// CatalogueVersions returns the bodies posted for a catalogue id.
func (f *WorkloadAPI) CatalogueVersions(id string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.catalogues[id]
}

func (f *WorkloadAPI) createWorkload(w http.ResponseWriter, r *http.Request) {
	var req workload.CreateWorkloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"Error": "invalid create request"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.workloads = append(f.workloads, workload.WorkloadSummary{ID: id, Name: req.Name, Status: "CREATING"})
	failed := f.failWith[req.Name]
	task := f.startTask(id, failed, func() {
		status := workload.WorkloadStatusActive
		if failed {
			status = workload.WorkloadStatusFailed
		}
		f.setStatus(id, status)
	})
	writeJSON(w, http.StatusAccepted, map[string]any{"TaskId": task.id, "WorkloadId": id})
}

func (f *WorkloadAPI) updateWorkload(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["CatalogueVersionId"] == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"Error": "CatalogueVersionId is required"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := r.PathValue("id")
	if f.indexOf(id) < 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"Error": "workload not found"})
		return
	}
	task := f.startTask(id, false, nil)
	writeJSON(w, http.StatusAccepted, map[string]any{"TaskId": task.id, "WorkloadId": id})
}

func (f *WorkloadAPI) deleteWorkload(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := r.PathValue("id")
	if f.indexOf(id) < 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"Error": "workload not found"})
		return
	}
	f.setStatus(id, workload.WorkloadStatusDeleting)
	task := f.startTask(id, false, func() { f.setStatus(id, workload.WorkloadStatusDeleted) })
	writeJSON(w, http.StatusAccepted, map[string]any{"TaskId": task.id, "WorkloadId": id})
}

func (f *WorkloadAPI) listWorkloads(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := 0
	if tok := r.URL.Query().Get("page_token"); tok != "" {
		n, err := strconv.Atoi(tok)
		if err != nil || n < 0 || n > len(f.workloads) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"Error": "invalid page token"})
			return
		}
		start = n
	}
	end := min(start+f.pageSize, len(f.workloads))

	page := workload.WorkloadPage{Workloads: append([]workload.WorkloadSummary{}, f.workloads[start:end]...)}
	if end < len(f.workloads) {
		page.NextPageToken = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, page)
}

func (f *WorkloadAPI) readTask(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	task, ok := f.tasks[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"Error": "task not found"})
		return
	}
	task.reads++

	status := workload.TaskStatusInProgress
	if task.reads >= f.completeAfter {
		status = workload.TaskStatusSucceeded
		if task.failed {
			status = workload.TaskStatusFailed
		}
		if task.onDone != nil {
			task.onDone()
			task.onDone = nil
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"TaskId":     task.id,
		"Status":     string(status),
		"WorkloadId": task.workloadID,
	})
}

func (f *WorkloadAPI) createCatalogue(w http.ResponseWriter, r *http.Request) {
	f.storeCatalogue(w, r, uuid.NewString())
}

func (f *WorkloadAPI) createCatalogueVersion(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	_, ok := f.catalogues[r.PathValue("id")]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"Error": "catalogue not found"})
		return
	}
	f.storeCatalogue(w, r, r.PathValue("id"))
}

func (f *WorkloadAPI) storeCatalogue(w http.ResponseWriter, r *http.Request, id string) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"Error": "invalid catalogue"})
		return
	}
	f.mu.Lock()
	f.catalogues[id] = append(f.catalogues[id], body)
	f.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{"CatalogueId": id, "CatalogueVersionId": uuid.NewString()})
}

// startTask must be called with f.mu held.
func (f *WorkloadAPI) startTask(workloadID string, failed bool, onDone func()) *fakeTask {
	t := &fakeTask{id: uuid.NewString(), workloadID: workloadID, failed: failed, onDone: onDone}
	f.tasks[t.id] = t
	return t
}

func (f *WorkloadAPI) indexOf(id string) int {
	for i, w := range f.workloads {
		if w.ID == id {
			return i
		}
	}
	return -1
}

func (f *WorkloadAPI) setStatus(id, status string) {
	if i := f.indexOf(id); i >= 0 {
		f.workloads[i].Status = status
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
