package workload

import (
	"fmt"

	"github.com/google/uuid"
)

// Operation is the lifecycle operation requested of the state machine.
// Values are case-sensitive.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Event is a validated, typed lifecycle request. Events are built once per
// invocation and never mutated.
type Event interface {
	Operation() Operation
}

// CreateEvent carries what is needed to create a workload.
//
// Optional fields are nil when absent from the raw request, and are omitted
// (not null) when the event is serialized back to the workflow engine.
type CreateEvent struct {
	AWSAccountID       string            `json:"aws_account_id"`
	AWSRegion          string            `json:"aws_region"`
	CatalogueID        uuid.UUID         `json:"catalogue_id"`
	WorkloadName       string            `json:"workload_name"`
	CatalogueVersionID *uuid.UUID        `json:"catalogue_version_id,omitempty"`
	WorkloadParameters map[string]string `json:"workload_parameters,omitempty"`
	WorkloadTags       map[string]string `json:"workload_tags,omitempty"`
}

// UpdateEvent identifies an existing workload and the catalogue version to converge to.
type UpdateEvent struct {
	WorkloadID         uuid.UUID `json:"workload_id"`
	CatalogueVersionID uuid.UUID `json:"catalogue_version_id"`
}

// DeleteEvent identifies a workload to delete.
type DeleteEvent struct {
	WorkloadID uuid.UUID `json:"workload_id"`
}

func (CreateEvent) Operation() Operation { return OperationCreate }
func (UpdateEvent) Operation() Operation { return OperationUpdate }
func (DeleteEvent) Operation() Operation { return OperationDelete }

// Parameter is one workload template parameter in the API's wire shape.
type Parameter struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// CreateWorkloadRequest is the payload submitted to create a workload.
// Optional members are omitted from the wire entirely when unset.
type CreateWorkloadRequest struct {
	Name               string            `json:"Name"`
	CatalogueID        string            `json:"CatalogueId"`
	AccountID          string            `json:"AccountId"`
	Region             string            `json:"Region"`
	CatalogueVersionID string            `json:"CatalogueVersionId,omitempty"`
	Parameters         []Parameter       `json:"Parameters,omitempty"`
	Tags               map[string]string `json:"Tags,omitempty"`
}

// Workload statuses reported by the workload API.
const (
	WorkloadStatusActive   = "ACTIVE"
	WorkloadStatusDeleting = "DELETING"
	WorkloadStatusDeleted  = "DELETED"
	WorkloadStatusFailed   = "FAILED"
)

// WorkloadSummary is one entry of the workload inventory.
type WorkloadSummary struct {
	ID     string `json:"Id"`
	Name   string `json:"Name"`
	Status string `json:"Status"`
}

// WorkloadPage is one page of the workload inventory.
// An empty NextPageToken marks the last page.
type WorkloadPage struct {
	Workloads     []WorkloadSummary `json:"Workloads"`
	NextPageToken string            `json:"NextPageToken,omitempty"`
}

// Response is a workload API response, passed back to the caller unchanged.
type Response map[string]any

// TaskID returns the task handle of an asynchronous operation, if present.
func (r Response) TaskID() string {
	return stringField(r, "TaskId")
}

// WorkloadID returns the workload the operation acted on, if present.
func (r Response) WorkloadID() string {
	return stringField(r, "WorkloadId")
}

// TaskStatus is the API's task status vocabulary, compared as an opaque string.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusSucceeded  TaskStatus = "SUCCEEDED"
	TaskStatusFailed     TaskStatus = "FAILED"
)

// IsTerminal reports whether the task will not change status again.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// Task is a task payload as returned by the workload API.
type Task map[string]any

// ID returns the task identifier.
func (t Task) ID() string { return stringField(t, "TaskId") }

// Status returns the task status.
func (t Task) Status() TaskStatus { return TaskStatus(stringField(t, "Status")) }

// WorkloadID returns the workload associated with the task, if any.
func (t Task) WorkloadID() string { return stringField(t, "WorkloadId") }

// Catalogue describes one uploaded catalogue version.
type Catalogue struct {
	Name         string `json:"Name,omitempty"`
	Version      string `json:"Version"`
	ManifestBody string `json:"ManifestBody"`
	Description  string `json:"Description"`
}

// CatalogueRequest asks for a manifest to be published as a catalogue item,
// or as a new version of ExistingCatalogueID when set.
type CatalogueRequest struct {
	Bucket              string     `json:"bucket"`
	Name                string     `json:"catalogue_name"`
	ManifestPath        string     `json:"manifest_path"`
	Description         string     `json:"description"`
	ExistingCatalogueID *uuid.UUID `json:"catalogue_id,omitempty"`
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
