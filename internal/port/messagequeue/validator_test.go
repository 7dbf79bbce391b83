package messagequeue

import (
	"strings"
	"testing"
)

func TestValidateValidTaskStatus(t *testing.T) {
	data := []byte(`{"task_id":"t1","project_id":"p1","from":"running","status":"completed","terminal":true,"updated_at":"2025-01-01T00:00:00Z"}`)
	if err := Validate(SubjectTaskStatus, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateValidTaskCreated(t *testing.T) {
	data := []byte(`{"task_id":"t1","project_id":"p1","agent_id":"a1"}`)
	if err := Validate(SubjectTaskCreated, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateMissingFields(t *testing.T) {
	err := Validate(SubjectTaskStatus, []byte(`{"project_id":"p1"}`))
	if err == nil || !strings.Contains(err.Error(), "task_id and status are required") {
		t.Fatalf("expected required-field error, got %v", err)
	}
}

func TestValidateWrongType(t *testing.T) {
	err := Validate(SubjectTaskStatus, []byte(`{"task_id":42,"status":"failed"}`))
	if err == nil || !strings.Contains(err.Error(), "schema validation failed") {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestValidateInvalidJSON(t *testing.T) {
	if err := Validate(SubjectTaskStatus, []byte(`{not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestValidateUnknownSubject(t *testing.T) {
	if err := Validate("a2a.other", []byte(`{"anything":true}`)); err != nil {
		t.Fatalf("unknown subjects should pass: %v", err)
	}
}
