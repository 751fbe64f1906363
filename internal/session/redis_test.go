package session

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStorage(t *testing.T, clientID string, ttl time.Duration) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStorage(rdb, clientID, ttl), mr
}

func TestRedisStorageRoundTrip(t *testing.T) {
	storage, mr := newRedisStorage(t, "client-1", time.Hour)
	store := NewStore(storage, nil)

	if err := store.Save("tok-1", sampleUser()); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if !mr.Exists(redisKeyPrefix + "client-1") {
		t.Fatal("expected hash key to exist")
	}
	if ttl := mr.TTL(redisKeyPrefix + "client-1"); ttl != time.Hour {
		t.Fatalf("unexpected ttl: %v", ttl)
	}

	sess, ok := store.Read()
	if !ok || sess.Token != "tok-1" || sess.User.Email != "admin@admin.com" {
		t.Fatalf("unexpected session: %#v ok=%v", sess, ok)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if mr.Exists(redisKeyPrefix + "client-1") {
		t.Fatal("expected hash key to be removed")
	}
}

func TestRedisStorageCorruptUserHeals(t *testing.T) {
	storage, mr := newRedisStorage(t, "client-2", 0)
	mr.HSet(redisKeyPrefix+"client-2", TokenKey, "tok", UserKey, "{broken")

	store := NewStore(storage, nil)
	if _, ok := store.Read(); ok {
		t.Fatal("expected no session")
	}
	if mr.Exists(redisKeyPrefix + "client-2") {
		t.Fatal("corrupt session should be removed")
	}
}

func TestRedisStorageMissingKey(t *testing.T) {
	storage, _ := newRedisStorage(t, "nobody", 0)
	v, ok, err := storage.GetItem(TokenKey)
	if err != nil || ok || v != "" {
		t.Fatalf("unexpected result: %q %v %v", v, ok, err)
	}
}
