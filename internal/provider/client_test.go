package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reachlab/reach-data/internal/config"
)

func testClientConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		BaseURL:       baseURL,
		Quota:         100,
		QuotaInterval: time.Second,
		Timeout:       5 * time.Second,
		MaxRetries:    3,
		RetryBackoff:  5 * time.Millisecond,
	}
}

func TestRESTClient_RetryTransient(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := NewRESTClient("test", testClientConfig(server.URL), time.Time{}, nil)

	var result struct {
		OK bool `json:"ok"`
	}
	if err := c.Get(context.Background(), "/data", nil, &result); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !result.OK {
		t.Error("result.OK = false, want true")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3 (two 500s then success)", got)
	}
}

func TestRESTClient_RetryExhaustion(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := testClientConfig(server.URL)
	cfg.MaxRetries = 2

	c := NewRESTClient("test", cfg, time.Time{}, nil)

	var result map[string]any
	err := c.Get(context.Background(), "/data", nil, &result)
	if err == nil {
		t.Fatal("Get succeeded, want error after retries exhausted")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3 (initial + 2 retries)", got)
	}
	if ClassOf(err) != ClassTransient {
		t.Errorf("ClassOf = %v, want transient", ClassOf(err))
	}
}

func TestRESTClient_TimeoutRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	cfg := testClientConfig(server.URL)
	cfg.Timeout = 50 * time.Millisecond

	c := NewRESTClient("test", cfg, time.Time{}, nil)

	// The first attempt times out at the HTTP client; the timeout must
	// classify transient and the retry must succeed.
	var result struct {
		OK bool `json:"ok"`
	}
	if err := c.Get(context.Background(), "/data", nil, &result); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !result.OK {
		t.Error("result.OK = false, want true")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server calls = %d, want 2 (timeout then success)", got)
	}
}

func TestRESTClient_PermanentNoRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewRESTClient("test", testClientConfig(server.URL), time.Time{}, nil)

	var result map[string]any
	err := c.Get(context.Background(), "/missing", nil, &result)
	if err == nil {
		t.Fatal("Get succeeded, want 404 error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1 (no retries on permanent)", got)
	}

	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("error %T is not *provider.Error", err)
	}
	if pe.Class != ClassPermanent {
		t.Errorf("Class = %v, want permanent", pe.Class)
	}
}

func TestRESTClient_SystemicNoRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := NewRESTClient("test", testClientConfig(server.URL), time.Time{}, nil)

	var result map[string]any
	err := c.Get(context.Background(), "/data", nil, &result)
	if err == nil {
		t.Fatal("Get succeeded, want 401 error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1 (no retries on systemic)", got)
	}
	if !IsSystemic(err) {
		t.Errorf("IsSystemic = false, want true for 401")
	}
}

func TestRESTClient_RateLimitWindow(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	const quota = 5
	interval := 250 * time.Millisecond

	cfg := testClientConfig(server.URL)
	cfg.Quota = quota
	cfg.QuotaInterval = interval

	c := NewRESTClient("test", cfg, time.Time{}, nil)

	// Fire well more than one quota's worth of calls from many goroutines.
	var wg sync.WaitGroup
	for i := 0; i < 3*quota; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var result map[string]any
			if err := c.Get(context.Background(), "/data", nil, &result); err != nil {
				t.Errorf("Get failed: %v", err)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	// No window of length interval may contain more than quota calls.
	for i := range stamps {
		count := 1
		for j := i + 1; j < len(stamps); j++ {
			if stamps[j].Sub(stamps[i]) < interval {
				count++
			}
		}
		if count > quota {
			t.Fatalf("window starting at call %d holds %d calls, want <= %d", i, count, quota)
		}
	}
}

func TestRESTClient_EarliestDateOverride(t *testing.T) {
	fallback := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	cfg := testClientConfig("http://unused")
	c := NewRESTClient("test", cfg, fallback, nil)
	if !c.EarliestDate().Equal(fallback) {
		t.Errorf("EarliestDate = %v, want fallback %v", c.EarliestDate(), fallback)
	}

	cfg.EarliestDate = "2015-06-01"
	c = NewRESTClient("test", cfg, fallback, nil)
	want := time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC)
	if !c.EarliestDate().Equal(want) {
		t.Errorf("EarliestDate = %v, want %v", c.EarliestDate(), want)
	}
}

// timeoutError mimics the net.Error produced by an HTTP client timeout,
// which also matches errors.Is(err, context.DeadlineExceeded).
type timeoutError struct{}

func (timeoutError) Error() string        { return "request timed out" }
func (timeoutError) Timeout() bool        { return true }
func (timeoutError) Temporary() bool      { return true }
func (timeoutError) Is(target error) bool { return target == context.DeadlineExceeded }

func TestClassOf_Unwrapped(t *testing.T) {
	if got := ClassOf(errors.New("connection reset by peer")); got != ClassTransient {
		t.Errorf("ClassOf(raw error) = %v, want transient", got)
	}
	if got := ClassOf(context.Canceled); got != ClassPermanent {
		t.Errorf("ClassOf(context.Canceled) = %v, want permanent", got)
	}
	// A timeout matching the deadline sentinel still classifies transient.
	if got := ClassOf(timeoutError{}); got != ClassTransient {
		t.Errorf("ClassOf(timeout) = %v, want transient", got)
	}
}
