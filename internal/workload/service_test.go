package workload

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"workload-orchestrator/internal/apperrors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestService(api *fakeAPI, store ObjectStore) *Service {
	svc := NewService(api, store, nil)
	svc.newVersion = func() string { return "v-1" }
	return svc
}

func TestWorkloadWithNameAlreadyExists(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		workloads []WorkloadSummary
		query     string
		want      bool
	}{
		{name: "active match", workloads: []WorkloadSummary{{Name: "foo", Status: WorkloadStatusActive}}, query: "foo", want: true},
		{name: "other name", workloads: []WorkloadSummary{{Name: "foo", Status: WorkloadStatusActive}}, query: "bar", want: false},
		{name: "deleting match", workloads: []WorkloadSummary{{Name: "foo", Status: WorkloadStatusDeleting}}, query: "foo", want: false},
		{name: "deleted match", workloads: []WorkloadSummary{{Name: "foo", Status: WorkloadStatusDeleted}}, query: "foo", want: false},
		{name: "empty inventory", workloads: nil, query: "foo", want: false},
		{name: "case sensitive", workloads: []WorkloadSummary{{Name: "Foo", Status: WorkloadStatusActive}}, query: "foo", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			api := newFakeAPI()
			api.pages[""] = &WorkloadPage{Workloads: tt.workloads}

			got, err := newTestService(api, nil).WorkloadWithNameAlreadyExists(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWorkloadWithNameAlreadyExists_Paginates(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.pages[""] = &WorkloadPage{Workloads: []WorkloadSummary{{Name: "a", Status: WorkloadStatusActive}}, NextPageToken: "p2"}
	api.pages["p2"] = &WorkloadPage{Workloads: []WorkloadSummary{{Name: "b", Status: WorkloadStatusActive}}, NextPageToken: "p3"}
	api.pages["p3"] = &WorkloadPage{Workloads: []WorkloadSummary{{Name: "foo", Status: WorkloadStatusActive}}}
	svc := newTestService(api, nil)

	got, err := svc.WorkloadWithNameAlreadyExists(context.Background(), "foo")
	require.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, []string{"", "p2", "p3"}, api.listCalls)

	all, err := svc.ListWorkloads(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestWorkloadWithNameAlreadyExists_RepeatedToken(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.pages[""] = &WorkloadPage{NextPageToken: "p2"}
	api.pages["p2"] = &WorkloadPage{NextPageToken: "p2"}

	_, err := newTestService(api, nil).WorkloadWithNameAlreadyExists(context.Background(), "foo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repeated token")
}

func TestCreate_Collision(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.pages[""] = &WorkloadPage{Workloads: []WorkloadSummary{{Name: "foo", Status: WorkloadStatusActive}}}
	ev, err := Validate(createInput())
	require.NoError(t, err)

	_, err = newTestService(api, nil).Dispatch(context.Background(), ev)
	appErr := requireKind(t, err, apperrors.ErrWorkloadNameCollision)
	assert.Contains(t, appErr.Message, "foo")
	assert.Equal(t, apperrors.TypeWorkloadNameCollision, apperrors.TypeName(err))
	assert.Empty(t, api.creates, "create must not be submitted on collision")
}

func TestCreate_ListFailurePropagates(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.listErr = errors.New("list unavailable")
	ev, err := Validate(createInput())
	require.NoError(t, err)

	_, err = newTestService(api, nil).Dispatch(context.Background(), ev)
	require.ErrorIs(t, err, api.listErr)
	assert.Empty(t, api.creates)
}

func TestDispatch_Create(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	in := createInput()
	in["workload_parameters"] = map[string]any{"size": "small"}
	ev, err := Validate(in)
	require.NoError(t, err)

	resp, err := newTestService(api, nil).Dispatch(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, "task-create", resp.TaskID())
	require.Len(t, api.creates, 1)

	req := api.creates[0]
	assert.Equal(t, "foo", req.Name)
	assert.Equal(t, testCatalogueID, req.CatalogueID)
	assert.Equal(t, "123456789012", req.AccountID)
	assert.Equal(t, "ap-southeast-2", req.Region)
	assert.Equal(t, []Parameter{{Key: "size", Value: "small"}}, req.Parameters)

	data, err := json.Marshal(req)
	require.NoError(t, err)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.NotContains(t, wire, "CatalogueVersionId")
	assert.NotContains(t, wire, "Tags")
}

func TestDispatch_UpdateDelete(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	svc := newTestService(api, nil)
	wid, vid := uuid.MustParse(testWorkloadID), uuid.MustParse(testVersionID)

	resp, err := svc.Dispatch(context.Background(), UpdateEvent{WorkloadID: wid, CatalogueVersionID: vid})
	require.NoError(t, err)
	assert.Equal(t, "task-update", resp.TaskID())
	assert.Equal(t, [][2]uuid.UUID{{wid, vid}}, api.updates)

	resp, err = svc.Dispatch(context.Background(), &DeleteEvent{WorkloadID: wid})
	require.NoError(t, err)
	assert.Equal(t, "task-delete", resp.TaskID())
	assert.Equal(t, []uuid.UUID{wid}, api.deletes)
}

func TestDispatch_APIErrorPropagatesUnchanged(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.callErr = errors.New("upstream refused")

	_, err := newTestService(api, nil).Dispatch(context.Background(), &DeleteEvent{WorkloadID: uuid.New()})
	assert.Same(t, api.callErr, err)
}

func TestDispatch_Nil(t *testing.T) {
	t.Parallel()

	_, err := newTestService(newFakeAPI(), nil).Dispatch(context.Background(), nil)
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestDispatch_TypedNilEvents(t *testing.T) {
	t.Parallel()

	for name, ev := range map[string]Event{
		"create": (*CreateEvent)(nil),
		"update": (*UpdateEvent)(nil),
		"delete": (*DeleteEvent)(nil),
	} {
		t.Run(name, func(t *testing.T) {
			api := newFakeAPI()
			var (
				resp Response
				err  error
			)
			require.NotPanics(t, func() {
				resp, err = newTestService(api, nil).Dispatch(context.Background(), ev)
			})
			require.ErrorIs(t, err, apperrors.ErrValidation)
			assert.Nil(t, resp)
			assert.Empty(t, api.listCalls)
			assert.Empty(t, api.creates)
			assert.Empty(t, api.updates)
			assert.Empty(t, api.deletes)
		})
	}
}

func TestParametersList(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ParametersList(map[string]string{}))

	list := ParametersList(map[string]string{"a": "1", "b": "2"})
	assert.ElementsMatch(t, []Parameter{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}, list)
}

func TestBuildCreateRequest_Optionals(t *testing.T) {
	t.Parallel()

	vid := uuid.MustParse(testVersionID)
	req := BuildCreateRequest(&CreateEvent{
		AWSAccountID:       "1",
		AWSRegion:          "r",
		CatalogueID:        uuid.MustParse(testCatalogueID),
		WorkloadName:       "n",
		CatalogueVersionID: &vid,
		WorkloadTags:       map[string]string{"k": "v"},
	})
	assert.Equal(t, testVersionID, req.CatalogueVersionID)
	assert.Equal(t, map[string]string{"k": "v"}, req.Tags)
	assert.Nil(t, req.Parameters)
}

func TestGetTaskStatus(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.tasks["t-1"] = Task{"TaskId": "t-1", "Status": "IN_PROGRESS", "WorkloadId": "wl-1"}
	api.tasks["t-2"] = Task{"TaskId": "t-2", "Status": "FAILED", "Reason": "stack rollback"}
	svc := newTestService(api, nil)

	task, err := svc.GetTaskStatus(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusInProgress, task.Status())
	assert.False(t, task.Status().IsTerminal())
	assert.Equal(t, "wl-1", task.WorkloadID())

	task, err = svc.GetTaskStatus(context.Background(), "t-2")
	require.NoError(t, err, "a failed task is data, not an error")
	assert.Equal(t, TaskStatusFailed, task.Status())
	assert.True(t, task.Status().IsTerminal())
	assert.Equal(t, "stack rollback", task["Reason"])
}

func TestGetTaskStatus_NotFound(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	svc := newTestService(api, nil)

	_, err := svc.GetTaskStatus(context.Background(), "missing")
	appErr := requireKind(t, err, apperrors.ErrTaskNotFound)
	assert.Contains(t, appErr.Message, "missing")
	assert.Equal(t, apperrors.TypeTaskNotFound, apperrors.TypeName(err))

	api.tasks["nil"] = nil
	_, err = svc.GetTaskStatus(context.Background(), "nil")
	requireKind(t, err, apperrors.ErrTaskNotFound)

	_, err = svc.GetTaskStatus(context.Background(), "")
	requireKind(t, err, apperrors.ErrMissingRequiredInput)
}

func TestGetTaskStatus_ReadErrorKeepsCause(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.readErr = errors.New("connection reset")

	_, err := newTestService(api, nil).GetTaskStatus(context.Background(), "t-1")
	require.ErrorIs(t, err, apperrors.ErrTaskNotFound)
	require.ErrorIs(t, err, api.readErr)
}

func writeManifest(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "template.yaml")
	require.NoError(t, os.WriteFile(p, []byte("Resources: {}\n"), 0o600))
	return p
}

func TestCreateOrUpdateCatalogue_NewItem(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	store := &fakeStore{}
	svc := newTestService(api, store)

	resp, err := svc.CreateOrUpdateCatalogue(context.Background(), &CatalogueRequest{
		Bucket:       "artifacts",
		Name:         "web",
		ManifestPath: writeManifest(t),
		Description:  "web tier",
	})
	require.NoError(t, err)
	assert.Equal(t, "task-catalogue", resp.TaskID())

	require.Len(t, store.puts, 1)
	assert.True(t, strings.HasSuffix(store.puts[0], "->artifacts/v-1-web.yaml"))
	require.Len(t, api.catalogueNew, 1)
	assert.Empty(t, api.catalogueVers)

	c := api.catalogueNew[0]
	assert.Equal(t, "web", c.Name)
	assert.Equal(t, "v-1", c.Version)
	assert.Equal(t, "web tier", c.Description)

	var m struct {
		Resources []map[string]map[string]string `yaml:"Resources"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(c.ManifestBody), &m))
	require.Len(t, m.Resources, 1)
	res := m.Resources[0][ManifestResourceName]
	assert.Equal(t, ManifestResourceType, res["Type"])
	assert.Equal(t, "s3://artifacts/v-1-web.yaml", res["TemplateURL"])
}

func TestCreateOrUpdateCatalogue_NewVersion(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	svc := newTestService(api, &fakeStore{})
	id := uuid.MustParse(testCatalogueID)

	_, err := svc.CreateOrUpdateCatalogue(context.Background(), &CatalogueRequest{
		Bucket:              "artifacts",
		Name:                "web",
		ManifestPath:        writeManifest(t),
		ExistingCatalogueID: &id,
	})
	require.NoError(t, err)
	assert.Empty(t, api.catalogueNew)
	require.Len(t, api.catalogueVers[id], 1)
	assert.Equal(t, "v-1", api.catalogueVers[id][0].Version)
}

func TestCreateOrUpdateCatalogue_Invalid(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeAPI(), &fakeStore{})

	tests := []struct {
		name string
		req  *CatalogueRequest
		want error
	}{
		{name: "nil", req: nil, want: apperrors.ErrValidation},
		{name: "no bucket", req: &CatalogueRequest{Name: "a", ManifestPath: "p"}, want: apperrors.ErrMissingRequiredInput},
		{name: "no name", req: &CatalogueRequest{Bucket: "b", ManifestPath: "p"}, want: apperrors.ErrMissingRequiredInput},
		{name: "no manifest", req: &CatalogueRequest{Bucket: "b", Name: "a"}, want: apperrors.ErrMissingRequiredInput},
		{name: "separator in name", req: &CatalogueRequest{Bucket: "b", Name: "a/b", ManifestPath: "p"}, want: apperrors.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.CreateOrUpdateCatalogue(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResolveManifestPath(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	root := filepath.Join(base, "manifests")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "web"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(root, "web", "stack.yaml"), []byte("Resources: {}\n"), 0o600))
	outside := filepath.Join(base, "outside.yaml")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o600))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape.yaml")))

	got, err := ResolveManifestPath(root, "web/stack.yaml")
	require.NoError(t, err)
	rootReal, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(rootReal, "web", "stack.yaml"), got)

	got, err = ResolveManifestPath(root, "web/../web/./stack.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(rootReal, "web", "stack.yaml"), got)

	tests := []struct {
		name string
		root string
		path string
		want error
	}{
		{name: "empty path", root: root, path: "", want: apperrors.ErrMissingRequiredInput},
		{name: "no root", root: "", path: "web/stack.yaml", want: apperrors.ErrValidation},
		{name: "parent traversal", root: root, path: "../outside.yaml", want: apperrors.ErrValidation},
		{name: "nested traversal", root: root, path: "web/../../outside.yaml", want: apperrors.ErrValidation},
		{name: "absolute", root: root, path: outside, want: apperrors.ErrValidation},
		{name: "absolute system file", root: root, path: "/etc/passwd", want: apperrors.ErrValidation},
		{name: "symlink out of root", root: root, path: "escape.yaml", want: apperrors.ErrValidation},
		{name: "directory", root: root, path: "web", want: apperrors.ErrValidation},
		{name: "root itself", root: root, path: ".", want: apperrors.ErrValidation},
		{name: "missing", root: root, path: "web/absent.yaml", want: apperrors.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ResolveManifestPath(tt.root, tt.path)
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, got)
		})
	}
}

func TestCreateOrUpdateCatalogue_UploadFailure(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	store := &fakeStore{err: errors.New("bucket missing")}

	_, err := newTestService(api, store).CreateOrUpdateCatalogue(context.Background(), &CatalogueRequest{
		Bucket: "b", Name: "a", ManifestPath: "p",
	})
	require.ErrorIs(t, err, store.err)
	assert.Empty(t, api.catalogueNew)

	_, err = newTestService(api, nil).CreateOrUpdateCatalogue(context.Background(), &CatalogueRequest{
		Bucket: "b", Name: "a", ManifestPath: "p",
	})
	require.ErrorIs(t, err, apperrors.ErrInternal)
}
