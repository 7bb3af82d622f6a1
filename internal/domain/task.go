package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Directive names the kind of work a task represents.
type Directive string

// Known directives
const (
	DirectiveExtractBatch Directive = "extract-batch"
	DirectiveExtractPage  Directive = "extract-page"
	DirectiveDiscover     Directive = "discover"
	DirectiveSearch       Directive = "search"
	DirectiveHalt         Directive = "halt"
)

// TaskStatus represents the lifecycle state of a stored task.
// A successfully handled task is deleted, so there is no "completed" status.
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusFailed     TaskStatus = "FAILED"
)

// Task validation errors
var (
	ErrInvalidTask      = errors.New("invalid task")
	ErrMissingRecord    = fmt.Errorf("%w: payload carries no record", ErrInvalidTask)
	ErrInvalidDirective = fmt.Errorf("%w: missing directive", ErrInvalidTask)
	ErrInvalidStatus    = errors.New("invalid task status")
)

// Task is a unit of work stored in the shared task table and delivered
// to workers through change events.
type Task struct {
	ID        int64      `json:"id"`
	Worker    string     `json:"worker"`
	Directive Directive  `json:"directive"`
	Status    TaskStatus `json:"status"`
	Body      TaskBody   `json:"body"`
	CreatedAt time.Time  `json:"created_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at,omitempty"`
}

// taskRecord is the wire form of a Task with an undecoded body.
type taskRecord struct {
	ID        int64           `json:"id"`
	Worker    string          `json:"worker"`
	Directive Directive       `json:"directive"`
	Status    TaskStatus      `json:"status"`
	Body      json.RawMessage `json:"body"`
	CreatedAt time.Time       `json:"created_at,omitempty"`
	UpdatedAt time.Time       `json:"updated_at,omitempty"`
}

// UnmarshalJSON decodes a task record, selecting the body variant from
// the directive tag.
func (t *Task) UnmarshalJSON(data []byte) error {
	var rec taskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	if rec.Directive == "" {
		return ErrInvalidDirective
	}

	body, err := DecodeBody(rec.Directive, rec.Body)
	if err != nil {
		return err
	}

	*t = Task{
		ID:        rec.ID,
		Worker:    rec.Worker,
		Directive: rec.Directive,
		Status:    rec.Status,
		Body:      body,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	return nil
}

// BodyJSON returns the serialized body for persistence.
func (t *Task) BodyJSON() ([]byte, error) {
	if t.Body == nil {
		return []byte("{}"), nil
	}
	if u, ok := t.Body.(*UnknownBody); ok {
		return u.Raw, nil
	}
	return json.Marshal(t.Body)
}

// IsValidStatus reports whether s is one of the known task statuses.
func IsValidStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// IsKnownDirective reports whether d is handled by this worker.
func IsKnownDirective(d Directive) bool {
	switch d {
	case DirectiveExtractBatch, DirectiveExtractPage, DirectiveDiscover,
		DirectiveSearch, DirectiveHalt:
		return true
	default:
		return false
	}
}
