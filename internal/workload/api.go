// Package workload implements the workload lifecycle stages: input validation,
// the name collision guard, lifecycle dispatch, catalogue publishing and task
// status polling.
package workload

import (
	"context"

	"github.com/google/uuid"
)

// API defines the external workload management capability.
//
// # State Management
//
// The API is the SOURCE OF TRUTH for workload and task state. This package
// holds none: every stage is a single stateless call, and in-flight state
// travels in the event payload owned by the workflow engine.
//
// # Errors
//
// Implementations return their own error values. Stages propagate them
// unmodified, except the task poller which folds every lookup failure into
// apperrors.ErrTaskNotFound.
type API interface {
	// CreateWorkload submits a create request and returns a task handle.
	// It is not idempotent: a repeated call creates a second workload.
	CreateWorkload(ctx context.Context, req *CreateWorkloadRequest) (Response, error)

	// UpdateWorkload moves a workload to a catalogue version.
	UpdateWorkload(ctx context.Context, workloadID, catalogueVersionID uuid.UUID) (Response, error)

	// DeleteWorkload submits a delete request.
	DeleteWorkload(ctx context.Context, workloadID uuid.UUID) (Response, error)

	// ListWorkloads returns one page of the workload inventory.
	// Pass the previous page's NextPageToken to continue; "" starts at the beginning.
	ListWorkloads(ctx context.Context, pageToken string) (*WorkloadPage, error)

	// ReadTask returns the current payload of a task.
	ReadTask(ctx context.Context, taskID string) (Task, error)

	// CreateCatalogueItem registers a new catalogue item.
	CreateCatalogueItem(ctx context.Context, catalogue *Catalogue) (Response, error)

	// CreateCatalogueVersion appends a version to an existing catalogue item.
	CreateCatalogueVersion(ctx context.Context, catalogueID uuid.UUID, catalogue *Catalogue) (Response, error)

	// Ready checks the workload API is reachable.
	Ready(ctx context.Context) error
}

// ObjectStore stores artifacts referenced by catalogue manifests.
type ObjectStore interface {
	// Put uploads the file at localPath under key and returns its locator.
	Put(ctx context.Context, bucket, localPath, key string) (string, error)
}
