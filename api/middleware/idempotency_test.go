package middleware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
)

type memReplayStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemReplayStore() *memReplayStore {
	return &memReplayStore{data: map[string]string{}}
}

func (m *memReplayStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memReplayStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memReplayStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memReplayStore) ReleaseLock(_ context.Context, key, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] != owner {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func (m *memReplayStore) IdempotencyKey(scope, key string) string {
	return scope + ":" + key
}

func idempotentRequest(t *testing.T, handler http.Handler, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenders/t-1/award", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	req = req.WithContext(WithActor(req.Context(), actorWith(enums.ActorRoleBuyer)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newMemReplayStore()
	calls := 0
	handler := Idempotency(store, time.Hour, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"data":{"echo":%q,"call":%d}}`, body, calls)
	}))

	actor := actorWith(enums.ActorRoleBuyer)
	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tenders/t-1/award", strings.NewReader(body))
		req.Header.Set(IdempotencyHeader, "award-1")
		req = req.WithContext(WithActor(req.Context(), actor))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := send(`{"submission_id":"s-1"}`)
	require.Equal(t, http.StatusCreated, first.Code)

	second := send(`{"submission_id":"s-1"}`)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Equal(t, "true", second.Header().Get(ReplayedHeader))
	require.Equal(t, "application/json", second.Header().Get("Content-Type"))
	require.Equal(t, 1, calls)

	reused := send(`{"submission_id":"s-2"}`)
	require.Equal(t, http.StatusConflict, reused.Code)
	require.Equal(t, 1, calls)
}

func TestIdempotencyPassesThroughWithoutKey(t *testing.T) {
	calls := 0
	handler := Idempotency(newMemReplayStore(), 0, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	idempotentRequest(t, handler, "", "{}")
	idempotentRequest(t, handler, "", "{}")
	require.Equal(t, 2, calls)

	nilStore := Idempotency(nil, 0, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	idempotentRequest(t, nilStore, "k", "{}")
	require.Equal(t, 3, calls)
}

func TestIdempotencyRejectsMalformedKey(t *testing.T) {
	handler := Idempotency(newMemReplayStore(), 0, logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := idempotentRequest(t, handler, "bad key with spaces", "{}")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdempotencyReleasesClaimOnServerError(t *testing.T) {
	store := newMemReplayStore()
	fail := true
	handler := Idempotency(store, 0, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	actor := actorWith(enums.ActorRoleBuyer)
	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tenders/t-1/publish", strings.NewReader("{}"))
		req.Header.Set(IdempotencyHeader, "publish-1")
		req = req.WithContext(WithActor(req.Context(), actor))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusServiceUnavailable, send())
	require.Empty(t, store.data)

	fail = false
	require.Equal(t, http.StatusOK, send())
	require.Len(t, store.data, 1)
}

func TestIdempotencyReportsInFlightRequest(t *testing.T) {
	store := newMemReplayStore()
	release := make(chan struct{})
	started := make(chan struct{})
	handler := Idempotency(store, 0, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	}))

	actor := actorWith(enums.ActorRoleBuyer)
	build := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tenders/t-1/cancel", strings.NewReader(`{"reason":"x"}`))
		req.Header.Set(IdempotencyHeader, "cancel-1")
		return req.WithContext(WithActor(req.Context(), actor))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(httptest.NewRecorder(), build())
	}()
	<-started

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, build())
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "still in progress")

	close(release)
	<-done
}
