package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/instapress/internal/models"
)

func testAttempt(key string) *models.PublishAttempt {
	return &models.PublishAttempt{
		ProcessingKey: key,
		Status:        models.AttemptStatusPolling,
		Containers: []models.ContainerRecord{
			{ContainerID: "c1", State: models.ContainerStatePending},
		},
	}
}

func TestMemoryStorePutGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Put(ctx, testAttempt("k1"), time.Minute); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ProcessingKey != "k1" || len(got.Containers) != 1 {
		t.Fatalf("unexpected attempt: %+v", got)
	}

	// Snapshots are copies; mutating one must not affect the stored value.
	got.Containers[0].State = models.ContainerStateReady
	again, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if again.Containers[0].State != models.ContainerStatePending {
		t.Error("stored attempt was mutated through a returned snapshot")
	}
}

func TestMemoryStoreMissingKey(t *testing.T) {
	store := NewMemoryStore()
	got, err := store.Get(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil for missing key, got %+v", got)
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Put(ctx, testAttempt("k1"), 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(25 * time.Millisecond)

	got, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("expired attempt should read as missing")
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	store.Put(ctx, testAttempt("k1"), time.Minute)
	if err := store.Delete(ctx, "k1"); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Get(ctx, "k1")
	if got != nil {
		t.Error("deleted attempt should read as missing")
	}
}

func TestClaimPublishingMutualExclusion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	const claimers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.ClaimPublishing(ctx, "k1", time.Minute)
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if won != 1 {
		t.Fatalf("expected exactly one claim winner, got %d", won)
	}

	// Released claims can be re-taken.
	if err := store.ReleasePublishing(ctx, "k1"); err != nil {
		t.Fatal(err)
	}
	ok, err := store.ClaimPublishing(ctx, "k1", time.Minute)
	if err != nil || !ok {
		t.Errorf("claim after release should succeed, got ok=%v err=%v", ok, err)
	}
}

func TestClaimExpiresWithTTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	ok, _ := store.ClaimPublishing(ctx, "k1", 10*time.Millisecond)
	if !ok {
		t.Fatal("first claim should succeed")
	}
	time.Sleep(25 * time.Millisecond)

	ok, _ = store.ClaimPublishing(ctx, "k1", time.Minute)
	if !ok {
		t.Error("claim should be reclaimable after its TTL")
	}
}
