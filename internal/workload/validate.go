package workload

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"workload-orchestrator/internal/apperrors"

	"github.com/google/uuid"
)

// OperationKey is the raw request key naming the requested operation.
const OperationKey = "operation"

type fieldKind int

const (
	kindString fieldKind = iota
	kindUUID
	kindStringMap
)

// field declares one event field. Declaration order is scan order.
type field struct {
	name     string
	kind     fieldKind
	required bool
}

type schema []field

var (
	createSchema = schema{
		{name: "aws_account_id", kind: kindString, required: true},
		{name: "aws_region", kind: kindString, required: true},
		{name: "catalogue_id", kind: kindUUID, required: true},
		{name: "workload_name", kind: kindString, required: true},
		{name: "catalogue_version_id", kind: kindUUID},
		{name: "workload_parameters", kind: kindStringMap},
		{name: "workload_tags", kind: kindStringMap},
	}
	updateSchema = schema{
		{name: "workload_id", kind: kindUUID, required: true},
		{name: "catalogue_version_id", kind: kindUUID, required: true},
	}
	deleteSchema = schema{
		{name: "workload_id", kind: kindUUID, required: true},
	}
)

// Validate parses a raw request into a typed event, reading the operation
// from the request's "operation" key.
func Validate(raw map[string]any) (Event, error) {
	op, ok := raw[OperationKey]
	if !ok || op == nil {
		return nil, apperrors.MissingRequiredInput(OperationKey)
	}
	name, ok := op.(string)
	if !ok {
		return nil, apperrors.UnsupportedOperation(fmt.Sprint(op))
	}
	return ValidateOperation(Operation(name), raw)
}

// ValidateOperation parses raw into the event type of op.
//
// Every required key must be present and non-null; the first one missing, in
// field declaration order, is reported. Keys not declared for op are ignored.
// Optional keys that are absent, null or empty are left unset on the event.
func ValidateOperation(op Operation, raw map[string]any) (Event, error) {
	switch op {
	case OperationCreate:
		v, err := createSchema.extract(raw)
		if err != nil {
			return nil, err
		}
		return &CreateEvent{
			AWSAccountID:       v.str("aws_account_id"),
			AWSRegion:          v.str("aws_region"),
			CatalogueID:        v.uuid("catalogue_id"),
			WorkloadName:       v.str("workload_name"),
			CatalogueVersionID: v.uuidPtr("catalogue_version_id"),
			WorkloadParameters: v.stringMap("workload_parameters"),
			WorkloadTags:       v.stringMap("workload_tags"),
		}, nil
	case OperationUpdate:
		v, err := updateSchema.extract(raw)
		if err != nil {
			return nil, err
		}
		return &UpdateEvent{
			WorkloadID:         v.uuid("workload_id"),
			CatalogueVersionID: v.uuid("catalogue_version_id"),
		}, nil
	case OperationDelete:
		v, err := deleteSchema.extract(raw)
		if err != nil {
			return nil, err
		}
		return &DeleteEvent{WorkloadID: v.uuid("workload_id")}, nil
	default:
		return nil, apperrors.UnsupportedOperation(string(op))
	}
}

// values holds the parsed fields that were present in a raw request.
type values map[string]any

func (v values) str(name string) string {
	s, _ := v[name].(string)
	return s
}

func (v values) uuid(name string) uuid.UUID {
	id, _ := v[name].(uuid.UUID)
	return id
}

func (v values) uuidPtr(name string) *uuid.UUID {
	id, ok := v[name].(uuid.UUID)
	if !ok {
		return nil
	}
	return &id
}

func (v values) stringMap(name string) map[string]string {
	m, _ := v[name].(map[string]string)
	return m
}

// extract checks presence of every required field before parsing any of them,
// so a missing field is always reported as missing even when another is malformed.
func (s schema) extract(raw map[string]any) (values, error) {
	for _, f := range s {
		if !f.required {
			continue
		}
		if v, ok := raw[f.name]; !ok || v == nil {
			return nil, apperrors.MissingRequiredInput(f.name)
		}
	}

	out := make(values, len(s))
	for _, f := range s {
		rawValue, ok := raw[f.name]
		if !ok || rawValue == nil {
			continue
		}
		parsed, present, err := f.parse(rawValue)
		if err != nil {
			return nil, err
		}
		if present {
			out[f.name] = parsed
		}
	}
	return out, nil
}

// parse converts a raw value. present is false for optional values that are
// empty and must be treated as absent.
func (f field) parse(raw any) (parsed any, present bool, err error) {
	switch f.kind {
	case kindString:
		s, ok := raw.(string)
		if !ok {
			return nil, false, apperrors.Validation(f.name, fmt.Sprintf("%s must be a string", f.name))
		}
		s = strings.TrimSpace(s)
		if s == "" {
			if f.required {
				return nil, false, apperrors.Validation(f.name, fmt.Sprintf("%s must not be empty", f.name))
			}
			return nil, false, nil
		}
		return s, true, nil

	case kindUUID:
		s, ok := raw.(string)
		if !ok {
			return nil, false, apperrors.Validation(f.name, fmt.Sprintf("%s must be a UUID string", f.name))
		}
		if strings.TrimSpace(s) == "" && !f.required {
			return nil, false, nil
		}
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, false, apperrors.Validation(f.name, fmt.Sprintf("%s must be a UUID: %v", f.name, err))
		}
		return id, true, nil

	case kindStringMap:
		m, err := toStringMap(f.name, raw)
		if err != nil {
			return nil, false, err
		}
		if len(m) == 0 {
			return nil, false, nil
		}
		return m, true, nil
	}
	return nil, false, fmt.Errorf("unknown field kind %d", f.kind)
}

// toStringMap accepts a mapping of scalars. Numbers and booleans are rendered
// the way they were written; nested values are rejected.
func toStringMap(name string, raw any) (map[string]string, error) {
	var src map[string]any
	switch m := raw.(type) {
	case map[string]any:
		src = m
	case map[string]string:
		return maps.Clone(m), nil
	default:
		return nil, apperrors.Validation(name, fmt.Sprintf("%s must be a mapping", name))
	}

	out := make(map[string]string, len(src))
	for k, v := range src {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case int:
			out[k] = strconv.Itoa(val)
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		case json.Number:
			out[k] = val.String()
		case nil:
			out[k] = ""
		default:
			return nil, apperrors.Validation(name, fmt.Sprintf("%s.%s must be a scalar value", name, k))
		}
	}
	return out, nil
}
