package filestore

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Strob0t/agentlink/internal/domain"
)

func TestLayout_ProjectDir(t *testing.T) {
	l := Layout{Root: "/data"}
	tests := []struct {
		name      string
		projectID string
		hashed    bool
	}{
		{name: "plain", projectID: "my-project_1"},
		{name: "dotted", projectID: "proj.v2"},
		{name: "path traversal", projectID: "../etc", hashed: true},
		{name: "absolute path", projectID: "/home/user/repo", hashed: true},
		{name: "dot dot", projectID: "..", hashed: true},
		{name: "empty", projectID: "", hashed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := l.ProjectDir(tt.projectID)
			if filepath.Dir(got) != filepath.Join("/data", "projects") {
				t.Fatalf("ProjectDir(%q) = %q escapes projects dir", tt.projectID, got)
			}
			base := filepath.Base(got)
			if tt.hashed {
				if !strings.HasPrefix(base, "p-") || len(base) != 18 {
					t.Fatalf("expected hashed name, got %q", base)
				}
				return
			}
			if base != tt.projectID {
				t.Fatalf("base = %q, want %q", base, tt.projectID)
			}
		})
	}

	if l.ProjectDir("/a/b") != l.ProjectDir("/a/b") {
		t.Fatal("hashed names must be stable")
	}
	if l.ProjectDir("/a/b") == l.ProjectDir("/a/c") {
		t.Fatal("distinct ids must not collide")
	}
}

func TestLayout_TaskPathRejectsNonUUID(t *testing.T) {
	l := Layout{Root: "/data"}
	if _, err := l.TaskPath("p", "../../x"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	p, err := l.TaskPath("p", "6f1c1a9e-4a55-4b8e-9a51-1d1c6d9f2b11")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(p) != "6f1c1a9e-4a55-4b8e-9a51-1d1c6d9f2b11.json" {
		t.Fatalf("TaskPath = %q", p)
	}
}
