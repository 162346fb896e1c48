package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
)

type fakeCounter struct {
	count int64
	reset time.Time
	err   error
}

func (f *fakeCounter) IncrementRateLimit(principal string, window time.Duration) (int64, time.Time, error) {
	if f.err != nil {
		return 0, time.Time{}, f.err
	}
	f.count++
	return f.count, f.reset, nil
}

func withPrincipal(plan string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/routes", nil)
	p := &Principal{ID: uuid.New(), Role: RoleUser, Plan: plan}
	return req.WithContext(context.WithValue(req.Context(), ContextKeyPrincipal, p))
}

func TestRateLimiter_Limits(t *testing.T) {
	counter := &fakeCounter{count: FreePlanLimit - 1, reset: time.Now().Add(30 * time.Second)}
	rl := NewRateLimiter(counter, nil)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withPrincipal("free"))
	if rec.Code != http.StatusOK {
		t.Fatalf("last allowed request status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("remaining = %q, want 0", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, withPrincipal("free"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("over limit status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	logger, hook := test.NewNullLogger()
	rl := NewRateLimiter(&fakeCounter{err: errors.New("store closed")}, logger)

	called := false
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withPrincipal("standard"))

	if !called || rec.Code != http.StatusOK {
		t.Errorf("counter failure blocked the request: status = %d", rec.Code)
	}
	if hook.LastEntry() == nil || hook.LastEntry().Message != "rate limit counter unavailable" {
		t.Error("expected a warning about the counter")
	}
}

func TestRateLimiter_NoPrincipal(t *testing.T) {
	rl := NewRateLimiter(&fakeCounter{}, nil)
	rec := httptest.NewRecorder()
	rl.Middleware(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestLimitForPlan(t *testing.T) {
	tests := map[string]int{
		"free":       FreePlanLimit,
		"standard":   StandardPlanLimit,
		"enterprise": EnterprisePlanLimit,
		"":           FreePlanLimit,
		"platinum":   FreePlanLimit,
	}
	for plan, want := range tests {
		if got := LimitForPlan(plan); got != want {
			t.Errorf("LimitForPlan(%q) = %d, want %d", plan, got, want)
		}
	}
}
