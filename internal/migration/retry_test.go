package migration

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"POST Contacts: HTTP 429: too many requests", true},
		{"GET Tickets/1: HTTP 503: service unavailable", true},
		{"read tcp: connection reset by peer", true},
		{"Post \"https://x\": context deadline exceeded", true},
		{"GET Companies/5: HTTP 500: internal error", true},
		{"POST Contacts: HTTP 400: companyID is required", false},
		{"GET Contacts/9: HTTP 404: not found", false},
		{"PATCH Contacts: HTTP 401: invalid credentials", false},
	}
	for _, tt := range tests {
		if got := isTransient(errors.New(tt.msg)); got != tt.want {
			t.Errorf("isTransient(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
	if isTransient(nil) {
		t.Error("isTransient(nil) = true, want false")
	}
}

func TestBackoffDelay(t *testing.T) {
	r := newRetryer(RetryPolicy{MaxRetries: 10, BaseDelayMs: 500})
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // capped
		{9, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := r.backoffDelay(tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffDelay_Jitter(t *testing.T) {
	r := newRetryer(RetryPolicy{MaxRetries: 5, BaseDelayMs: 1000, Jitter: true})
	r.randFloat = func() float64 { return 1.0 }

	// Full jitter adds 30% on top of the base delay.
	if got, want := r.backoffDelay(0), 1300*time.Millisecond; got != want {
		t.Errorf("backoffDelay(0) with max jitter = %v, want %v", got, want)
	}
	// Jitter never pushes past the cap.
	if got := r.backoffDelay(8); got > maxRetryDelay {
		t.Errorf("backoffDelay(8) = %v, above the %v cap", got, maxRetryDelay)
	}
}

func newFakeSleepRetryer(policy RetryPolicy) (*retryer, *[]time.Duration) {
	slept := &[]time.Duration{}
	r := newRetryer(policy)
	r.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return r, slept
}

func TestRetryerDo_TransientThenSuccess(t *testing.T) {
	r, slept := newFakeSleepRetryer(RetryPolicy{MaxRetries: 5, BaseDelayMs: 100})
	calls := 0
	err := r.do(context.Background(), "create Contacts", nil, func() error {
		calls++
		if calls < 3 {
			return errors.New("HTTP 429: rate limit exceeded")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("do returned error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(*slept) != len(want) || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Errorf("slept = %v, want %v", *slept, want)
	}
}

func TestRetryerDo_NonTransientPropagatesImmediately(t *testing.T) {
	r, slept := newFakeSleepRetryer(RetryPolicy{MaxRetries: 5, BaseDelayMs: 100})
	calls := 0
	wantErr := errors.New("HTTP 400: companyID is required")
	err := r.do(context.Background(), "create Contacts", nil, func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("do returned %v, want the original error", err)
	}
	if calls != 1 || len(*slept) != 0 {
		t.Errorf("calls = %d, slept = %v; want a single call with no sleeps", calls, *slept)
	}
}

func TestRetryerDo_Exhaustion(t *testing.T) {
	r, _ := newFakeSleepRetryer(RetryPolicy{MaxRetries: 2, BaseDelayMs: 10})
	var warnings []string
	calls := 0
	err := r.do(context.Background(), "upload attachment", func(msg string) {
		warnings = append(warnings, msg)
	}, func() error {
		calls++
		return errors.New("HTTP 503: service unavailable")
	})
	if err == nil {
		t.Fatal("do returned nil, want exhaustion error")
	}
	if !strings.Contains(err.Error(), "upload attachment: retries exhausted after 3 attempts") {
		t.Errorf("error = %q, want exhaustion message with operation context", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(warnings) != 2 {
		t.Errorf("warnings = %d, want 2 retry notices", len(warnings))
	}
}

func TestRetryerDo_CancelledContextStopsRetrying(t *testing.T) {
	r := newRetryer(RetryPolicy{MaxRetries: 5, BaseDelayMs: 10})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := r.do(ctx, "create Contacts", nil, func() error {
		calls++
		return errors.New("HTTP 429: too many requests")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("do returned %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
