package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ProgressScope enumerates what a regeneration job covers.
type ProgressScope string

const (
	ProgressScopeYear    ProgressScope = "year"
	ProgressScopeClass   ProgressScope = "class"
	ProgressScopeStudent ProgressScope = "student"
)

// ProgressJobStatus captures background job lifecycle states.
type ProgressJobStatus string

const (
	ProgressJobPending   ProgressJobStatus = "PENDING"
	ProgressJobRunning   ProgressJobStatus = "RUNNING"
	ProgressJobSucceeded ProgressJobStatus = "SUCCEEDED"
	ProgressJobFailed    ProgressJobStatus = "FAILED"
	ProgressJobCancelled ProgressJobStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are possible.
func (s ProgressJobStatus) Terminal() bool {
	return s == ProgressJobSucceeded || s == ProgressJobFailed || s == ProgressJobCancelled
}

// ProgressJob persisted regeneration job metadata.
type ProgressJob struct {
	ID           string            `db:"id" json:"id"`
	Scope        ProgressScope     `db:"scope" json:"scope"`
	Params       ProgressJobParams `db:"params" json:"params"`
	AcademicYear string            `db:"academic_year" json:"academic_year"`
	Status       ProgressJobStatus `db:"status" json:"status"`
	SuccessCount int               `db:"success_count" json:"success_count"`
	ErrorCount   int               `db:"error_count" json:"error_count"`
	Errors       BatchItemErrors   `db:"errors" json:"errors,omitempty"`
	Attempts     int               `db:"attempts" json:"attempts"`
	CreatedBy    string            `db:"created_by" json:"created_by"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	StartedAt    *time.Time        `db:"started_at" json:"started_at,omitempty"`
	FinishedAt   *time.Time        `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string           `db:"error_message" json:"error_message,omitempty"`
}

// ProgressJobParams stores the request scope persisted as JSONB.
type ProgressJobParams struct {
	ClassID   string `json:"classId,omitempty"`
	StudentID string `json:"studentId,omitempty"`
}

// Value marshals params to JSON for persistence.
func (p ProgressJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal progress job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *ProgressJobParams) Scan(value interface{}) error {
	if value == nil {
		*p = ProgressJobParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ProgressJobParams", value)
	}
	if len(data) == 0 {
		*p = ProgressJobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal progress job params: %w", err)
	}
	return nil
}

// UpdateProgressJobParams holds the fields a status transition may change.
type UpdateProgressJobParams struct {
	ID           string
	Status       *ProgressJobStatus
	SuccessCount *int
	ErrorCount   *int
	Errors       *BatchItemErrors
	Attempts     *int
	StartedAt    *time.Time
	FinishedAt   *time.Time
	ErrorMessage *string
}
