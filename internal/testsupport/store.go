package testsupport

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"inkwell/internal/config"
	"inkwell/internal/metadata"
)

// MustOpenStore opens a metadata store over the test config and registers
// its cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *metadata.Store {
	t.Helper()
	store, err := metadata.Open(cfg)
	if err != nil {
		t.Fatalf("open metadata store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close metadata store: %v", err)
		}
	})
	return store
}

// MustOpenRedis starts an in-process Redis and returns a connected client.
// Both are torn down with the test.
func MustOpenRedis(t testing.TB) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}
