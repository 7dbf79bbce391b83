package messagequeue

import (
	"context"
	"errors"
	"testing"
)

type recordingPublisher struct {
	subjects []string
	err      error
}

func (r *recordingPublisher) Publish(_ context.Context, subject string, _ []byte) error {
	r.subjects = append(r.subjects, subject)
	return r.err
}

func TestFanoutDeliversToAll(t *testing.T) {
	boom := errors.New("boom")
	first := &recordingPublisher{err: boom}
	second := &recordingPublisher{}

	err := Fanout{first, second}.Publish(context.Background(), SubjectTaskStatus, []byte(`{}`))
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to wrap boom, got %v", err)
	}
	if len(first.subjects) != 1 || len(second.subjects) != 1 {
		t.Fatalf("expected both publishers called once, got %d and %d", len(first.subjects), len(second.subjects))
	}
}

func TestFanoutEmpty(t *testing.T) {
	if err := (Fanout{}).Publish(context.Background(), SubjectTaskCreated, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
