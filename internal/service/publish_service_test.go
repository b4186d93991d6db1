package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	config "github.com/maheshrc27/instapress/configs"
	"github.com/maheshrc27/instapress/internal/apperr"
	"github.com/maheshrc27/instapress/internal/models"
	"github.com/maheshrc27/instapress/internal/progress"
	"github.com/maheshrc27/instapress/internal/transfer"
)

// fakeGraph simulates the remote container API. Container states are driven
// by the test through the states map.
type fakeGraph struct {
	mu            sync.Mutex
	nextID        int
	createErr     error
	states        map[string]string
	statusErr     map[string]error
	carouselErr   error
	children      []string
	publishErr    error
	publishDelay  time.Duration
	publishCalls  int32
	statusCalls   int32
	defaultState  string
	itemCaptions  map[string]string
	carouselItems map[string]bool
}

func newFakeGraph(defaultState string) *fakeGraph {
	return &fakeGraph{
		states:        make(map[string]string),
		statusErr:     make(map[string]error),
		defaultState:  defaultState,
		itemCaptions:  make(map[string]string),
		carouselItems: make(map[string]bool),
	}
}

func (f *fakeGraph) CreateItemContainer(_ context.Context, imageURL string, carouselItem bool, caption string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("item-%d", f.nextID)
	f.states[id] = f.defaultState
	f.itemCaptions[id] = caption
	f.carouselItems[id] = carouselItem
	return id, nil
}

func (f *fakeGraph) CreateCarouselContainer(_ context.Context, children []string, caption string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.carouselErr != nil {
		return "", f.carouselErr
	}
	f.children = append([]string(nil), children...)
	if _, ok := f.states["carousel-1"]; !ok {
		f.states["carousel-1"] = models.ContainerStateReady
	}
	return "carousel-1", nil
}

func (f *fakeGraph) ContainerStatus(_ context.Context, containerID string) (string, error) {
	atomic.AddInt32(&f.statusCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.statusErr[containerID]; err != nil {
		return "", err
	}
	return f.states[containerID], nil
}

func (f *fakeGraph) Publish(_ context.Context, containerID string) (string, string, error) {
	atomic.AddInt32(&f.publishCalls, 1)
	if f.publishDelay > 0 {
		time.Sleep(f.publishDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return "", "", f.publishErr
	}
	return "media-1", "https://www.instagram.com/p/xyz/", nil
}

func (f *fakeGraph) setState(id, state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[id] = state
}

func (f *fakeGraph) setAllItems(state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range f.states {
		if id != "carousel-1" {
			f.states[id] = state
		}
	}
}

func testConfig() config.Config {
	return config.Config{ProgressTTL: time.Hour}
}

func urls(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://cdn.example.com/img-%d.jpg", i)
	}
	return out
}

func ids(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i + 1)
	}
	return out
}

func TestStartPublishValidation(t *testing.T) {
	s := NewPublishService(testConfig(), newFakeGraph(models.ContainerStateReady), progress.NewMemoryStore())

	tests := []struct {
		name string
		req  *models.PublishRequest
	}{
		{"no images", &models.PublishRequest{}},
		{"too many images", &models.PublishRequest{ImageURLs: urls(11), ImageIDs: ids(11)}},
		{"id mismatch", &models.PublishRequest{ImageURLs: urls(2), ImageIDs: ids(3)}},
		{"bad url", &models.PublishRequest{ImageURLs: []string{"not-a-url"}, ImageIDs: ids(1)}},
		{"long caption", &models.PublishRequest{
			ImageURLs: urls(1), ImageIDs: ids(1),
			Caption: string(make([]byte, 2201)),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.StartPublish(context.Background(), tt.req)
			if !apperr.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSingleImagePublishesInOneCall(t *testing.T) {
	fake := newFakeGraph(models.ContainerStateReady)
	s := NewPublishService(testConfig(), fake, progress.NewMemoryStore())

	st, err := s.StartPublish(context.Background(), &models.PublishRequest{
		ImageURLs: urls(1), ImageIDs: ids(1), Caption: "hello",
	})
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != transfer.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", st.Status, st.Message)
	}
	if st.MediaID != "media-1" || st.Permalink == "" {
		t.Errorf("result not surfaced: %+v", st)
	}
	if n := atomic.LoadInt32(&fake.publishCalls); n != 1 {
		t.Errorf("expected exactly 1 publish call, got %d", n)
	}
	if fake.itemCaptions["item-1"] != "hello" {
		t.Error("single image container must carry the caption")
	}
	if fake.carouselItems["item-1"] {
		t.Error("single image container must not be a carousel item")
	}
	if len(fake.children) != 0 {
		t.Error("no carousel should be created for a single image")
	}
}

func TestCarouselFlow(t *testing.T) {
	fake := newFakeGraph(models.ContainerStatePending)
	store := progress.NewMemoryStore()
	s := NewPublishService(testConfig(), fake, store)

	st, err := s.StartPublish(context.Background(), &models.PublishRequest{
		ImageURLs: urls(2), ImageIDs: ids(2), Caption: "trip",
	})
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != transfer.StatusProcessing {
		t.Fatalf("expected processing while containers are pending, got %s", st.Status)
	}
	if st.Total != 2 || st.Ready != 0 || st.Pending != 2 {
		t.Errorf("counts wrong: total=%d ready=%d pending=%d", st.Total, st.Ready, st.Pending)
	}
	if !fake.carouselItems["item-1"] || !fake.carouselItems["item-2"] {
		t.Error("multi-image containers must be carousel items")
	}
	if fake.itemCaptions["item-1"] != "" {
		t.Error("carousel items must not carry captions")
	}

	// One item becomes ready; still polling.
	fake.setState("item-1", models.ContainerStateReady)
	st, err = s.QueryStatus(context.Background(), st.ProcessingKey)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != transfer.StatusProcessing || st.Ready != 1 || st.Pending != 1 {
		t.Errorf("expected 1/1 split while polling, got %+v", st)
	}
	if len(fake.children) != 0 {
		t.Error("carousel must not be created before all items are ready")
	}

	// All ready: carousel created with the original item order, then published.
	fake.setState("item-2", models.ContainerStateReady)
	st, err = s.QueryStatus(context.Background(), st.ProcessingKey)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != transfer.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", st.Status, st.Message)
	}
	if st.Total != 2 {
		t.Errorf("carousel parent must not count toward total, got %d", st.Total)
	}
	if len(fake.children) != 2 || fake.children[0] != "item-1" || fake.children[1] != "item-2" {
		t.Errorf("carousel children wrong: %v", fake.children)
	}
	if n := atomic.LoadInt32(&fake.publishCalls); n != 1 {
		t.Errorf("expected exactly 1 publish call, got %d", n)
	}
}

func TestCarouselParentPendingSuspendsPolling(t *testing.T) {
	fake := newFakeGraph(models.ContainerStateReady)
	s := NewPublishService(testConfig(), fake, progress.NewMemoryStore())
	fake.states["carousel-1"] = models.ContainerStatePending

	st, err := s.StartPublish(context.Background(), &models.PublishRequest{
		ImageURLs: urls(2), ImageIDs: ids(2),
	})
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != transfer.StatusProcessing {
		t.Fatalf("expected processing while carousel parent is pending, got %s", st.Status)
	}
	if atomic.LoadInt32(&fake.publishCalls) != 0 {
		t.Error("must not publish while the carousel parent is pending")
	}

	fake.setState("carousel-1", models.ContainerStateReady)
	st, err = s.QueryStatus(context.Background(), st.ProcessingKey)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != transfer.StatusCompleted {
		t.Fatalf("expected completed, got %s", st.Status)
	}
	if len(fake.children) != 2 {
		t.Error("carousel should have been created once")
	}
}

func TestContainerErrorFailsAttempt(t *testing.T) {
	fake := newFakeGraph(models.ContainerStateError)
	s := NewPublishService(testConfig(), fake, progress.NewMemoryStore())

	st, err := s.StartPublish(context.Background(), &models.PublishRequest{
		ImageURLs: urls(1), ImageIDs: ids(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != transfer.StatusError {
		t.Fatalf("expected error status, got %s", st.Status)
	}
	if atomic.LoadInt32(&fake.publishCalls) != 0 {
		t.Error("failed attempt must not publish")
	}

	// Terminal replay without remote calls.
	before := atomic.LoadInt32(&fake.statusCalls)
	st, err = s.QueryStatus(context.Background(), st.ProcessingKey)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != transfer.StatusError {
		t.Errorf("failed state must persist, got %s", st.Status)
	}
	if atomic.LoadInt32(&fake.statusCalls) != before {
		t.Error("terminal replay must not hit the remote API")
	}
}

func TestCompletedReplayWithoutRemoteCalls(t *testing.T) {
	fake := newFakeGraph(models.ContainerStateReady)
	s := NewPublishService(testConfig(), fake, progress.NewMemoryStore())

	st, err := s.StartPublish(context.Background(), &models.PublishRequest{
		ImageURLs: urls(1), ImageIDs: ids(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != transfer.StatusCompleted {
		t.Fatalf("expected completed, got %s", st.Status)
	}

	statusBefore := atomic.LoadInt32(&fake.statusCalls)
	for i := 0; i < 3; i++ {
		st, err = s.QueryStatus(context.Background(), st.ProcessingKey)
		if err != nil {
			t.Fatal(err)
		}
		if st.Status != transfer.StatusCompleted || st.MediaID != "media-1" {
			t.Errorf("replay %d lost the result: %+v", i, st)
		}
	}
	if atomic.LoadInt32(&fake.statusCalls) != statusBefore {
		t.Error("completed replay must not hit the remote API")
	}
	if n := atomic.LoadInt32(&fake.publishCalls); n != 1 {
		t.Errorf("replay must not publish again, got %d calls", n)
	}
}

func TestUnknownKeyReportsNotFound(t *testing.T) {
	s := NewPublishService(testConfig(), newFakeGraph(models.ContainerStateReady), progress.NewMemoryStore())

	st, err := s.QueryStatus(context.Background(), "no-such-key")
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != transfer.StatusNotFound {
		t.Errorf("expected not_found, got %s", st.Status)
	}
}

func TestTransientStatusErrorLeavesContainerPending(t *testing.T) {
	fake := newFakeGraph(models.ContainerStatePending)
	s := NewPublishService(testConfig(), fake, progress.NewMemoryStore())

	st, err := s.StartPublish(context.Background(), &models.PublishRequest{
		ImageURLs: urls(1), ImageIDs: ids(1),
	})
	if err != nil {
		t.Fatal(err)
	}

	fake.mu.Lock()
	fake.statusErr["item-1"] = &apperr.TransientNetworkError{Op: "container status", Err: fmt.Errorf("timeout")}
	fake.mu.Unlock()

	st, err = s.QueryStatus(context.Background(), st.ProcessingKey)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != transfer.StatusProcessing || st.Pending != 1 {
		t.Errorf("transient failure must leave the attempt polling, got %+v", st)
	}

	// Next poll succeeds.
	fake.mu.Lock()
	delete(fake.statusErr, "item-1")
	fake.mu.Unlock()
	fake.setState("item-1", models.ContainerStateReady)

	st, err = s.QueryStatus(context.Background(), st.ProcessingKey)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != transfer.StatusCompleted {
		t.Errorf("expected completed after recovery, got %s", st.Status)
	}
}

func TestAuthErrorSurfacesSynchronously(t *testing.T) {
	fake := newFakeGraph(models.ContainerStateReady)
	fake.createErr = &apperr.AuthError{Message: "account not connected"}
	s := NewPublishService(testConfig(), fake, progress.NewMemoryStore())

	_, err := s.StartPublish(context.Background(), &models.PublishRequest{
		ImageURLs: urls(2), ImageIDs: ids(2),
	})
	if !apperr.IsAuth(err) {
		t.Errorf("expected auth error before any container exists, got %v", err)
	}
}

func TestPublishFailureIsTerminalByDefault(t *testing.T) {
	fake := newFakeGraph(models.ContainerStateReady)
	fake.publishErr = &apperr.RemoteAPIError{Code: 400, Message: "media not ready"}
	s := NewPublishService(testConfig(), fake, progress.NewMemoryStore())

	st, err := s.StartPublish(context.Background(), &models.PublishRequest{
		ImageURLs: urls(1), ImageIDs: ids(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != transfer.StatusError {
		t.Fatalf("expected error status, got %s", st.Status)
	}

	st, err = s.QueryStatus(context.Background(), st.ProcessingKey)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != transfer.StatusError {
		t.Errorf("publish failure must stay terminal, got %s", st.Status)
	}
	if n := atomic.LoadInt32(&fake.publishCalls); n != 1 {
		t.Errorf("terminal failure must not retry publish, got %d calls", n)
	}
}

func TestPublishFailureRetriesWhenConfigured(t *testing.T) {
	fake := newFakeGraph(models.ContainerStateReady)
	fake.publishErr = &apperr.RemoteAPIError{Code: 500, Message: "try again"}
	cfg := testConfig()
	cfg.RetryPublish = true
	s := NewPublishService(cfg, fake, progress.NewMemoryStore())

	st, err := s.StartPublish(context.Background(), &models.PublishRequest{
		ImageURLs: urls(1), ImageIDs: ids(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != transfer.StatusProcessing {
		t.Fatalf("expected attempt back in polling, got %s", st.Status)
	}

	fake.mu.Lock()
	fake.publishErr = nil
	fake.mu.Unlock()

	st, err = s.QueryStatus(context.Background(), st.ProcessingKey)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != transfer.StatusCompleted {
		t.Errorf("expected completed on retry, got %s", st.Status)
	}
	if n := atomic.LoadInt32(&fake.publishCalls); n != 2 {
		t.Errorf("expected 2 publish calls, got %d", n)
	}
}

// Concurrent status queries against a ready attempt must result in exactly
// one publish call; the rest observe the claim.
func TestConcurrentPollersPublishOnce(t *testing.T) {
	fake := newFakeGraph(models.ContainerStatePending)
	store := progress.NewMemoryStore()
	s := NewPublishService(testConfig(), fake, store)

	st, err := s.StartPublish(context.Background(), &models.PublishRequest{
		ImageURLs: urls(2), ImageIDs: ids(2),
	})
	if err != nil {
		t.Fatal(err)
	}
	fake.setAllItems(models.ContainerStateReady)
	fake.publishDelay = 20 * time.Millisecond

	const pollers = 8
	var wg sync.WaitGroup
	results := make([]*transfer.PublishStatus, pollers)
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.QueryStatus(context.Background(), st.ProcessingKey)
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	if n := atomic.LoadInt32(&fake.publishCalls); n != 1 {
		t.Fatalf("expected exactly 1 publish call, got %d", n)
	}
	for i, res := range results {
		if res == nil {
			continue
		}
		switch res.Status {
		case transfer.StatusCompleted, transfer.StatusPublishing, transfer.StatusProcessing:
		default:
			t.Errorf("poller %d got unexpected status %s", i, res.Status)
		}
	}

	final, err := s.QueryStatus(context.Background(), st.ProcessingKey)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != transfer.StatusCompleted {
		t.Errorf("expected completed after the dust settles, got %s", final.Status)
	}
}
