package tiered_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/agentlink/internal/adapter/tiered"
)

// memCache is a simple in-memory cache for testing.
type memCache struct {
	data map[string][]byte
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	if m.err != nil {
		return m.err
	}
	delete(m.data, key)
	return nil
}

func TestTieredGet(t *testing.T) {
	tests := []struct {
		name      string
		local     map[string][]byte
		remote    map[string][]byte
		want      string
		found     bool
		backfills bool
	}{
		{"local hit", map[string][]byte{"k": []byte("l1")}, map[string][]byte{"k": []byte("l2")}, "l1", true, false},
		{"remote hit", nil, map[string][]byte{"k": []byte("l2")}, "l2", true, true},
		{"miss", nil, nil, "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l1, l2 := newMemCache(), newMemCache()
			for k, v := range tt.local {
				l1.data[k] = v
			}
			for k, v := range tt.remote {
				l2.data[k] = v
			}
			c := tiered.New(l1, l2, time.Minute)

			val, found, err := c.Get(context.Background(), "k")
			if err != nil {
				t.Fatal(err)
			}
			if found != tt.found || string(val) != tt.want {
				t.Fatalf("got (%q, %v), want (%q, %v)", val, found, tt.want, tt.found)
			}
			if tt.backfills && string(l1.data["k"]) != tt.want {
				t.Fatal("expected remote hit copied into local cache")
			}
		})
	}
}

func TestTieredRemoteOutageIsMiss(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	l2.err = errors.New("nats: no responders")
	c := tiered.New(l1, l2, time.Minute)

	_, found, err := c.Get(context.Background(), "k")
	if err != nil || found {
		t.Fatalf("expected quiet miss, got found=%v err=%v", found, err)
	}

	// Set still lands in L1 and reports the remote failure.
	if err := c.Set(context.Background(), "k", []byte("v"), time.Minute); err == nil {
		t.Fatal("expected remote set error")
	}
	if string(l1.data["k"]) != "v" {
		t.Fatal("expected local write despite remote failure")
	}
	val, found, err := c.Get(context.Background(), "k")
	if err != nil || !found || string(val) != "v" {
		t.Fatalf("expected local hit, got %q %v %v", val, found, err)
	}
}

func TestTieredDeleteBoth(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	l1.data["k"] = []byte("v")
	l2.data["k"] = []byte("v")
	c := tiered.New(l1, l2, time.Minute)

	if err := c.Delete(context.Background(), "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok := l1.data["k"]; ok {
		t.Fatal("expected key deleted from L1")
	}
	if _, ok := l2.data["k"]; ok {
		t.Fatal("expected key deleted from L2")
	}
}
