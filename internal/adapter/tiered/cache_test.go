package tiered_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/forgetop/internal/adapter/tiered"
)

// memCache is an in-memory tier that records the ttl of every write.
type memCache struct {
	data   map[string][]byte
	ttls   map[string]time.Duration
	setErr error
	getErr error
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestLocalHitSkipsRemote(t *testing.T) {
	local, remote := newMemCache(), newMemCache()
	remote.getErr = errors.New("remote down")
	c := tiered.New(local, remote, time.Second)

	local.data["cost.monthly"] = []byte(`{"spent":1}`)

	val, found, err := c.Get(context.Background(), "cost.monthly")
	if err != nil || !found || string(val) != `{"spent":1}` {
		t.Fatalf("unexpected result %q %v %v", val, found, err)
	}
}

func TestRemoteHitBackfillsLocal(t *testing.T) {
	local, remote := newMemCache(), newMemCache()
	c := tiered.New(local, remote, 10*time.Second)

	remote.data["quality"] = []byte(`{"score":80}`)

	val, found, err := c.Get(context.Background(), "quality")
	if err != nil || !found || string(val) != `{"score":80}` {
		t.Fatalf("unexpected result %q %v %v", val, found, err)
	}
	if string(local.data["quality"]) != `{"score":80}` {
		t.Fatal("expected local backfill")
	}
	if local.ttls["quality"] != 10*time.Second {
		t.Fatalf("expected local ttl 10s, got %v", local.ttls["quality"])
	}
}

func TestMissInBothTiers(t *testing.T) {
	c := tiered.New(newMemCache(), newMemCache(), time.Second)

	_, found, err := c.Get(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected miss")
	}
}

func TestRemoteErrorSurfaces(t *testing.T) {
	local, remote := newMemCache(), newMemCache()
	remote.getErr = errors.New("remote down")
	c := tiered.New(local, remote, time.Second)

	if _, _, err := c.Get(context.Background(), "quality"); !errors.Is(err, remote.getErr) {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestSetWritesRemoteThenLocal(t *testing.T) {
	local, remote := newMemCache(), newMemCache()
	c := tiered.New(local, remote, 10*time.Second)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, ok := remote.data["k"]; !ok {
		t.Fatal("expected k in remote")
	}
	if local.ttls["k"] != 10*time.Second {
		t.Fatalf("local ttl should be capped at 10s, got %v", local.ttls["k"])
	}

	if err := c.Set(ctx, "short", []byte("v"), time.Second); err != nil {
		t.Fatal(err)
	}
	if local.ttls["short"] != time.Second {
		t.Fatalf("expected local ttl 1s, got %v", local.ttls["short"])
	}
}

func TestSetSkipsLocalWhenRemoteFails(t *testing.T) {
	local, remote := newMemCache(), newMemCache()
	remote.setErr = errors.New("bucket full")
	c := tiered.New(local, remote, time.Second)

	if err := c.Set(context.Background(), "k", []byte("v"), 0); !errors.Is(err, remote.setErr) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if _, ok := local.data["k"]; ok {
		t.Fatal("local must not hold a value remote rejected")
	}
}

func TestDeleteBothTiers(t *testing.T) {
	local, remote := newMemCache(), newMemCache()
	c := tiered.New(local, remote, time.Second)

	local.data["k"] = []byte("v")
	remote.data["k"] = []byte("v")

	if err := c.Delete(context.Background(), "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok := local.data["k"]; ok {
		t.Fatal("expected k deleted from local")
	}
	if _, ok := remote.data["k"]; ok {
		t.Fatal("expected k deleted from remote")
	}
}

func TestInvalidateRereadsRemote(t *testing.T) {
	local, remote := newMemCache(), newMemCache()
	c := tiered.New(local, remote, time.Minute)
	ctx := context.Background()

	remote.data["quality"] = []byte("old")
	if _, _, err := c.Get(ctx, "quality"); err != nil {
		t.Fatal(err)
	}
	remote.data["quality"] = []byte("new")

	if err := c.Invalidate(ctx, "quality"); err != nil {
		t.Fatal(err)
	}
	if _, ok := remote.data["quality"]; !ok {
		t.Fatal("invalidate must keep the remote value")
	}
	val, _, _ := c.Get(ctx, "quality")
	if string(val) != "new" {
		t.Fatalf("expected new, got %q", val)
	}
}
