package workload

import (
	"context"
	"fmt"
	"log/slog"
	"workload-orchestrator/internal/apperrors"
	"workload-orchestrator/internal/observability"

	"github.com/google/uuid"
)

// Service runs the workload lifecycle stages against an API.
//
// The Service is stateless: nothing is remembered between calls, so any number
// of independent invocations may run side by side. The workflow engine owns
// retries, polling cadence and in-flight state.
type Service struct {
	api        API
	store      ObjectStore
	metrics    *observability.Metrics
	newVersion func() string
}

// NewService creates a new workload service. store may be nil when catalogue
// publishing is not used; metrics may be nil.
func NewService(api API, store ObjectStore, metrics *observability.Metrics) *Service {
	return &Service{
		api:        api,
		store:      store,
		metrics:    metrics,
		newVersion: func() string { return uuid.NewString() },
	}
}

// WorkloadWithNameAlreadyExists reports whether an ACTIVE workload is named name.
//
// Every page of the inventory is read before answering false. The answer is
// only valid at the instant of the read: two concurrent creators can both see
// false.
func (s *Service) WorkloadWithNameAlreadyExists(ctx context.Context, name string) (bool, error) {
	pageToken := ""
	seen := make(map[string]struct{})
	for {
		page, err := s.api.ListWorkloads(ctx, pageToken)
		if err != nil {
			return false, err
		}
		for _, w := range page.Workloads {
			if w.Name == name && w.Status == WorkloadStatusActive {
				return true, nil
			}
		}
		if page.NextPageToken == "" {
			return false, nil
		}
		if _, dup := seen[page.NextPageToken]; dup {
			return false, fmt.Errorf("workload list pagination repeated token %q", page.NextPageToken)
		}
		seen[page.NextPageToken] = struct{}{}
		pageToken = page.NextPageToken
	}
}

// ListWorkloads returns the whole workload inventory.
func (s *Service) ListWorkloads(ctx context.Context) ([]WorkloadSummary, error) {
	var all []WorkloadSummary
	pageToken := ""
	for {
		page, err := s.api.ListWorkloads(ctx, pageToken)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Workloads...)
		if page.NextPageToken == "" || page.NextPageToken == pageToken {
			return all, nil
		}
		pageToken = page.NextPageToken
	}
}

// Create guards against a name collision, then submits the create request.
func (s *Service) Create(ctx context.Context, ev *CreateEvent) (Response, error) {
	exists, err := s.WorkloadWithNameAlreadyExists(ctx, ev.WorkloadName)
	if err != nil {
		return nil, err
	}
	if exists {
		if s.metrics != nil {
			s.metrics.RecordNameCollision(ctx)
		}
		slog.Warn("Workload name already in use", "workloadName", ev.WorkloadName)
		return nil, apperrors.WorkloadNameCollision(ev.WorkloadName)
	}
	return s.CreateWorkload(ctx, ev)
}

// CreateWorkload submits the create request for ev without any guard.
func (s *Service) CreateWorkload(ctx context.Context, ev *CreateEvent) (Response, error) {
	logger := slog.With("workloadName", ev.WorkloadName, "catalogueId", ev.CatalogueID)

	resp, err := s.api.CreateWorkload(ctx, BuildCreateRequest(ev))
	s.recordOperation(ctx, OperationCreate, err)
	if err != nil {
		logger.Error("Workload create failed", "error", err)
		return nil, err
	}

	logger.Info("Workload create submitted", "taskId", resp.TaskID())
	return resp, nil
}

// UpdateWorkload moves a workload to a catalogue version.
func (s *Service) UpdateWorkload(ctx context.Context, workloadID, catalogueVersionID uuid.UUID) (Response, error) {
	logger := slog.With("workloadId", workloadID, "catalogueVersionId", catalogueVersionID)

	resp, err := s.api.UpdateWorkload(ctx, workloadID, catalogueVersionID)
	s.recordOperation(ctx, OperationUpdate, err)
	if err != nil {
		logger.Error("Workload update failed", "error", err)
		return nil, err
	}

	logger.Info("Workload update submitted", "taskId", resp.TaskID())
	return resp, nil
}

// DeleteWorkload submits a delete request.
func (s *Service) DeleteWorkload(ctx context.Context, workloadID uuid.UUID) (Response, error) {
	logger := slog.With("workloadId", workloadID)

	resp, err := s.api.DeleteWorkload(ctx, workloadID)
	s.recordOperation(ctx, OperationDelete, err)
	if err != nil {
		logger.Error("Workload delete failed", "error", err)
		return nil, err
	}

	logger.Info("Workload delete submitted", "taskId", resp.TaskID())
	return resp, nil
}

// Dispatch routes a validated event to its API call. Create events pass
// through the collision guard first.
func (s *Service) Dispatch(ctx context.Context, ev Event) (Response, error) {
	switch e := ev.(type) {
	case *CreateEvent:
		if e == nil {
			return nil, errEventRequired()
		}
		return s.Create(ctx, e)
	case *UpdateEvent:
		if e == nil {
			return nil, errEventRequired()
		}
		return s.UpdateWorkload(ctx, e.WorkloadID, e.CatalogueVersionID)
	case *DeleteEvent:
		if e == nil {
			return nil, errEventRequired()
		}
		return s.DeleteWorkload(ctx, e.WorkloadID)
	case CreateEvent:
		return s.Create(ctx, &e)
	case UpdateEvent:
		return s.UpdateWorkload(ctx, e.WorkloadID, e.CatalogueVersionID)
	case DeleteEvent:
		return s.DeleteWorkload(ctx, e.WorkloadID)
	case nil:
		return nil, errEventRequired()
	default:
		return nil, apperrors.UnsupportedOperation(string(ev.Operation()))
	}
}

func errEventRequired() error {
	return apperrors.Validation(OperationKey, "event is required")
}

// GetTaskStatus reads the current payload of a task.
//
// Any lookup failure is reported as apperrors.ErrTaskNotFound. Terminal
// statuses, FAILED included, are returned as-is.
func (s *Service) GetTaskStatus(ctx context.Context, taskID string) (Task, error) {
	if taskID == "" {
		return nil, apperrors.MissingRequiredInput("task_id")
	}

	task, err := s.api.ReadTask(ctx, taskID)
	if err == nil && task == nil {
		err = fmt.Errorf("empty task payload")
	}
	if err != nil {
		slog.Warn("Task lookup failed", "taskId", taskID, "error", err)
		if s.metrics != nil {
			s.metrics.RecordTaskPoll(ctx, "not_found")
		}
		return nil, apperrors.TaskNotFound(taskID, err)
	}

	if s.metrics != nil {
		s.metrics.RecordTaskPoll(ctx, string(task.Status()))
	}
	slog.Debug("Task status read", "taskId", taskID, "status", task.Status())
	return task, nil
}

// Ready checks the workload API is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.api.Ready(ctx)
}

// BuildCreateRequest maps a create event to the API payload. Optional members
// are set only when the event carries them.
func BuildCreateRequest(ev *CreateEvent) *CreateWorkloadRequest {
	req := &CreateWorkloadRequest{
		Name:        ev.WorkloadName,
		CatalogueID: ev.CatalogueID.String(),
		AccountID:   ev.AWSAccountID,
		Region:      ev.AWSRegion,
	}
	if ev.CatalogueVersionID != nil {
		req.CatalogueVersionID = ev.CatalogueVersionID.String()
	}
	if len(ev.WorkloadParameters) > 0 {
		req.Parameters = ParametersList(ev.WorkloadParameters)
	}
	if len(ev.WorkloadTags) > 0 {
		req.Tags = ev.WorkloadTags
	}
	return req
}

// ParametersList converts a parameter mapping into the API's key/value list.
// Order is unspecified; keys are unique.
func ParametersList(params map[string]string) []Parameter {
	list := make([]Parameter, 0, len(params))
	for k, v := range params {
		list = append(list, Parameter{Key: k, Value: v})
	}
	return list
}

func (s *Service) recordOperation(ctx context.Context, op Operation, err error) {
	if s.metrics != nil {
		s.metrics.RecordWorkloadOperation(ctx, string(op), err == nil)
	}
}
