package secrets_test

import (
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/Strob0t/agentlink/internal/secrets"
)

func TestNewVault_InitialLoad(t *testing.T) {
	v, err := secrets.NewVault(func() (map[string]string, error) {
		return map[string]string{"KEY_A": "val_a", "KEY_B": "val_b"}, nil
	})
	if err != nil {
		t.Fatalf("NewVault failed: %v", err)
	}
	if got, ok := v.Lookup("KEY_A"); !ok || got != "val_a" {
		t.Errorf("KEY_A = %q, %v", got, ok)
	}
	if _, ok := v.Lookup("MISSING"); ok {
		t.Error("expected missing key to be absent")
	}
	if keys := v.Keys(); !slices.Equal(keys, []string{"KEY_A", "KEY_B"}) {
		t.Errorf("Keys = %v", keys)
	}
}

func TestNewVault_LoaderError(t *testing.T) {
	_, err := secrets.NewVault(func() (map[string]string, error) {
		return nil, errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error from failing loader")
	}
}

func TestVault_ReloadErrorPreservesValues(t *testing.T) {
	calls := 0
	v, err := secrets.NewVault(func() (map[string]string, error) {
		calls++
		switch calls {
		case 1:
			return map[string]string{"K": "v1"}, nil
		case 2:
			return map[string]string{"K": "v2"}, nil
		default:
			return nil, errors.New("source down")
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Reload(); err != nil {
		t.Fatal(err)
	}
	if got, _ := v.Lookup("K"); got != "v2" {
		t.Fatalf("after reload K = %q, want v2", got)
	}
	if err := v.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if got, _ := v.Lookup("K"); got != "v2" {
		t.Fatalf("failed reload changed K to %q", got)
	}
}

func TestVault_ConcurrentAccess(t *testing.T) {
	v, err := secrets.NewVault(func() (map[string]string, error) {
		return map[string]string{"K": "v"}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() { _, _ = v.Lookup("K") })
		wg.Go(func() { _ = v.Reload() })
	}
	wg.Wait()
}

func TestEnvLoader(t *testing.T) {
	t.Setenv("AGENTLINK_SECRET_REVIEWER", "tok")
	t.Setenv("AGENTLINK_SECRET_EMPTY", "")
	t.Setenv("UNRELATED_VAR", "x")

	vals, err := secrets.EnvLoader(secrets.EnvPrefix)()
	if err != nil {
		t.Fatal(err)
	}
	if vals["REVIEWER"] != "tok" {
		t.Errorf("REVIEWER = %q", vals["REVIEWER"])
	}
	if _, ok := vals["EMPTY"]; ok {
		t.Error("empty values must be omitted")
	}
	if _, ok := vals["UNRELATED_VAR"]; ok {
		t.Error("unprefixed variables must be ignored")
	}
}
