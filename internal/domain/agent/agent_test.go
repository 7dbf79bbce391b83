package agent

import "testing"

func TestProjectConfig_Match(t *testing.T) {
	cfg := ProjectConfig{AllowedAgents: []AllowedAgent{
		{Name: "off", URL: "https://off.example.com", Enabled: false},
		{Name: "hub", URL: "https://h/a2a", APIKey: "k1", Enabled: true},
	}}

	tests := []struct {
		name     string
		url      string
		wantName string
	}{
		{name: "subpath of allowed base", url: "https://h/a2a/agent-123", wantName: "hub"},
		{name: "exact", url: "https://h/a2a", wantName: "hub"},
		{name: "disabled entry", url: "https://off.example.com/agent"},
		{name: "unknown host", url: "https://other/a2a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := cfg.Match(tt.url)
			if tt.wantName == "" {
				if ok {
					t.Fatalf("expected no match, got %q", got.Name)
				}
				return
			}
			if !ok || got.Name != tt.wantName {
				t.Fatalf("Match(%q) = %v, %v; want %q", tt.url, got, ok, tt.wantName)
			}
		})
	}
}

func TestProjectConfig_Validate(t *testing.T) {
	cfg := ProjectConfig{AllowedAgents: []AllowedAgent{{Name: "x", Enabled: true}}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestAllowedAgent_Credential(t *testing.T) {
	lookup := func(name string) (string, bool) {
		if name == "REVIEWER" {
			return "tok-123", true
		}
		return "", false
	}

	tests := []struct {
		name    string
		apiKey  string
		want    string
		wantErr bool
	}{
		{"literal", "plain-token", "plain-token", false},
		{"empty", "", "", false},
		{"reference", "secret:REVIEWER", "tok-123", false},
		{"missing reference", "secret:OTHER", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := AllowedAgent{Name: "reviewer", APIKey: tt.apiKey}
			got, err := a.Credential(lookup)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}

	a := AllowedAgent{APIKey: "secret:REVIEWER"}
	if _, err := a.Credential(nil); err == nil {
		t.Fatal("expected error without a secret source")
	}
}
