package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch subject {
	case SubjectTaskCreated:
		var p TaskCreatedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.TaskID == "" || p.ProjectID == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errors.New("task_id and project_id are required"))
		}
	case SubjectTaskStatus:
		var p TaskStatusPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.TaskID == "" || p.Status == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errors.New("task_id and status are required"))
		}
	}
	return nil
}
