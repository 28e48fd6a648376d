//go:build integration

package redis_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	ledgerredis "github.com/crosstrans/trialproxy/ledger/redis"
)

func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func newTestStore(t *testing.T, client *goredis.Client, limit int) *ledgerredis.Store {
	t.Helper()
	// Use a unique prefix per test to avoid collisions.
	prefix := "test:" + t.Name() + ":"
	s := ledgerredis.New(client, limit, ledgerredis.WithKeyPrefix(prefix))
	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	})
	return s
}

func TestAdmitAndRecord(t *testing.T) {
	client := newTestClient(t)
	store := newTestStore(t, client, 2)
	ctx := context.Background()

	d, err := store.Admit(ctx, "dev1")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if !d.Allowed || d.Remaining != 2 {
		t.Fatalf("fresh caller: got %+v", d)
	}

	for i := 0; i < 2; i++ {
		if err := store.RecordSuccess(ctx, "dev1"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	d, err = store.Admit(ctx, "dev1")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if d.Allowed || d.Remaining != 0 {
		t.Fatalf("exhausted caller: got %+v", d)
	}
}

func TestConcurrentIncrements(t *testing.T) {
	client := newTestClient(t)
	store := newTestStore(t, client, 1000)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if err := store.RecordSuccess(ctx, "dev1"); err != nil {
					t.Errorf("record: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	count, err := store.CurrentCount(ctx, "dev1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 200 {
		t.Fatalf("expected 200 increments, got %d", count)
	}
}

func TestDayRollover(t *testing.T) {
	client := newTestClient(t)

	current := time.Date(2026, 8, 26, 23, 0, 0, 0, time.UTC)
	prefix := "test:" + t.Name() + ":"
	store := ledgerredis.New(client, 5,
		ledgerredis.WithKeyPrefix(prefix),
		ledgerredis.WithClock(func() time.Time { return current }),
	)
	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := store.RecordSuccess(ctx, "dev1"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	d, _ := store.Admit(ctx, "dev1")
	if d.Allowed {
		t.Fatal("caller should be exhausted before midnight")
	}

	current = current.Add(2 * time.Hour) // past midnight UTC

	d, err := store.Admit(ctx, "dev1")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if !d.Allowed || d.Remaining != 5 {
		t.Fatalf("rollover should reset quota: got %+v", d)
	}
}
