package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/scentora/storefront/internal/platform/auth"
)

var fixedTime = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

func newRequest(uid, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/checkout/place-order", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderName, key)
	}
	if uid != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Roles: []string{auth.RoleUser}}))
	}
	return req
}

func assertErrorCode(t *testing.T, body []byte, want string) {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["success"] != false || payload["error"] != want {
		t.Fatalf("expected error %q, got %v", want, payload)
	}
}

func TestMiddlewareMissingKey(t *testing.T) {
	var calls int
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})

	optional := Middleware(NewMemoryStore(), WithClock(fixedClock))(next)
	rr := httptest.NewRecorder()
	optional.ServeHTTP(rr, newRequest("u1", "", `{}`))
	if rr.Code != http.StatusCreated || calls != 1 {
		t.Fatalf("expected passthrough, got %d (calls %d)", rr.Code, calls)
	}

	required := Middleware(NewMemoryStore(), WithClock(fixedClock), WithRequiredKey(true))(next)
	rr = httptest.NewRecorder()
	required.ServeHTTP(rr, newRequest("u1", "", `{}`))
	if rr.Code != http.StatusBadRequest || calls != 1 {
		t.Fatalf("expected 400 without calling handler, got %d (calls %d)", rr.Code, calls)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_key_required")
}

func TestMiddlewareReplaysSuccessfulResponse(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore(), WithClock(fixedClock))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"order":{"id":"ord_1"}}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, newRequest("u1", "key-1", `{"addressId":"a1"}`))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, newRequest("u1", "key-1", `{"addressId":"a1"}`))

	if calls != 1 {
		t.Fatalf("expected handler once, got %d", calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Fatalf("replay mismatch: %d %q", second.Code, second.Body.String())
	}
	if second.Header().Get(ReplayHeader) != "true" {
		t.Fatal("expected replay header")
	}
	if first.Header().Get(ReplayHeader) != "" {
		t.Fatal("first response must not be marked as replay")
	}
}

func TestMiddlewareScopesKeysPerCaller(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore(), WithClock(fixedClock))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), newRequest("u1", "shared", `{}`))
	handler.ServeHTTP(httptest.NewRecorder(), newRequest("u2", "shared", `{}`))

	if calls != 2 {
		t.Fatalf("expected both callers to reach the handler, got %d", calls)
	}
}

func TestMiddlewareRejectsReusedKeyWithDifferentBody(t *testing.T) {
	handler := Middleware(NewMemoryStore(), WithClock(fixedClock))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), newRequest("u1", "key-1", `{"addressId":"a1"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newRequest("u1", "key-1", `{"addressId":"a2"}`))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddlewareInFlightKey(t *testing.T) {
	store := NewMemoryStore()
	req := newRequest("u1", "key-1", `{}`)
	if _, _, err := store.Claim(context.Background(), "u1|key-1", fingerprintOf(req, []byte(`{}`)), fixedTime, time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	called := false
	handler := Middleware(store, WithClock(fixedClock))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newRequest("u1", "key-1", `{}`))

	if called || rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 without handler, got %d (called %v)", rr.Code, called)
	}
	assertErrorCode(t, rr.Body.Bytes(), "request_in_progress")
}

func TestMiddlewareReleasesKeyOnFailure(t *testing.T) {
	statuses := []int{http.StatusConflict, http.StatusCreated}
	var calls int
	handler := Middleware(NewMemoryStore(), WithClock(fixedClock))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(statuses[calls])
		calls++
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, newRequest("u1", "key-1", `{}`))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, newRequest("u1", "key-1", `{}`))

	if calls != 2 {
		t.Fatalf("expected retry to reach handler, got %d calls", calls)
	}
	if first.Code != http.StatusConflict || second.Code != http.StatusCreated {
		t.Fatalf("unexpected statuses %d, %d", first.Code, second.Code)
	}
}

type failingStore struct {
	claimErr error
}

func (s failingStore) Claim(context.Context, string, string, time.Time, time.Duration) (Outcome, Entry, error) {
	return OutcomeInFlight, Entry{}, s.claimErr
}

func (failingStore) Complete(context.Context, Entry, time.Time, time.Duration) error { return nil }

func (failingStore) Abandon(context.Context, string) error { return nil }

func TestMiddlewareStoreUnavailable(t *testing.T) {
	handler := Middleware(failingStore{claimErr: errors.New("redis down")})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newRequest("u1", "key-1", `{}`))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestMiddlewareIgnoresSafeMethods(t *testing.T) {
	called := false
	handler := Middleware(failingStore{claimErr: errors.New("unused")})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set(HeaderName, "key-1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if !called || rr.Code != http.StatusOK {
		t.Fatalf("expected passthrough, got %d", rr.Code)
	}
}

func TestMemoryStoreExpiryAndSweep(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	outcome, entry, err := store.Claim(ctx, "u1|k", "fp", fixedTime, time.Minute)
	if err != nil || outcome != OutcomeFresh {
		t.Fatalf("expected fresh claim, got %v %v", outcome, err)
	}
	entry.Status = http.StatusCreated
	if err := store.Complete(ctx, entry, fixedTime, time.Minute); err != nil {
		t.Fatalf("complete: %v", err)
	}

	outcome, stored, err := store.Claim(ctx, "u1|k", "fp", fixedTime.Add(30*time.Second), time.Minute)
	if err != nil || outcome != OutcomeReplay || stored.Status != http.StatusCreated {
		t.Fatalf("expected replay, got %v %+v %v", outcome, stored, err)
	}

	removed, err := store.Sweep(ctx, fixedTime.Add(2*time.Minute), 10)
	if err != nil || removed != 1 {
		t.Fatalf("expected one swept entry, got %d %v", removed, err)
	}
	outcome, _, err = store.Claim(ctx, "u1|k", "other", fixedTime.Add(2*time.Minute), time.Minute)
	if err != nil || outcome != OutcomeFresh {
		t.Fatalf("expected fresh claim after expiry, got %v %v", outcome, err)
	}
}
