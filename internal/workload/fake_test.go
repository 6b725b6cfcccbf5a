package workload

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// fakeAPI is an in-memory API that records the calls made against it.
type fakeAPI struct {
	mu sync.Mutex

	pages    map[string]*WorkloadPage
	listErr  error
	tasks    map[string]Task
	readErr  error
	callErr  error
	readyErr error

	listCalls     []string
	creates       []*CreateWorkloadRequest
	updates       [][2]uuid.UUID
	deletes       []uuid.UUID
	catalogueNew  []*Catalogue
	catalogueVers map[uuid.UUID][]*Catalogue
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		pages:         map[string]*WorkloadPage{"": {}},
		tasks:         map[string]Task{},
		catalogueVers: map[uuid.UUID][]*Catalogue{},
	}
}

func (f *fakeAPI) CreateWorkload(_ context.Context, req *CreateWorkloadRequest) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	f.creates = append(f.creates, req)
	return Response{"TaskId": "task-create", "WorkloadId": "wl-1"}, nil
}

func (f *fakeAPI) UpdateWorkload(_ context.Context, workloadID, versionID uuid.UUID) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	f.updates = append(f.updates, [2]uuid.UUID{workloadID, versionID})
	return Response{"TaskId": "task-update", "WorkloadId": workloadID.String()}, nil
}

func (f *fakeAPI) DeleteWorkload(_ context.Context, workloadID uuid.UUID) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	f.deletes = append(f.deletes, workloadID)
	return Response{"TaskId": "task-delete"}, nil
}

func (f *fakeAPI) ListWorkloads(_ context.Context, pageToken string) (*WorkloadPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, pageToken)
	if f.listErr != nil {
		return nil, f.listErr
	}
	page, ok := f.pages[pageToken]
	if !ok {
		return nil, errors.New("unknown page token")
	}
	return page, nil
}

func (f *fakeAPI) ReadTask(_ context.Context, taskID string) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	task, ok := f.tasks[taskID]
	if !ok {
		return nil, errors.New("task does not exist")
	}
	return task, nil
}

func (f *fakeAPI) CreateCatalogueItem(_ context.Context, c *Catalogue) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	f.catalogueNew = append(f.catalogueNew, c)
	return Response{"TaskId": "task-catalogue", "CatalogueId": uuid.NewString()}, nil
}

func (f *fakeAPI) CreateCatalogueVersion(_ context.Context, id uuid.UUID, c *Catalogue) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	f.catalogueVers[id] = append(f.catalogueVers[id], c)
	return Response{"TaskId": "task-version", "CatalogueId": id.String()}, nil
}

func (f *fakeAPI) Ready(context.Context) error { return f.readyErr }

// fakeStore records uploads and returns s3 style locators.
type fakeStore struct {
	mu   sync.Mutex
	puts []string
	err  error
}

func (s *fakeStore) Put(_ context.Context, bucket, localPath, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.puts = append(s.puts, localPath+"->"+bucket+"/"+key)
	return "s3://" + bucket + "/" + key, nil
}
