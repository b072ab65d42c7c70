package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/trip-ledger/internal/models"
)

func newIdempotency(t *testing.T) (*Idempotency, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger, _ := test.NewNullLogger()
	return NewIdempotency(client, time.Hour, logger), mr
}

func post(key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/trips/t-1/charges", strings.NewReader(`{"amount":10}`))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	claims := &models.Claims{UserID: "u-1", Role: models.RoleAccountant}
	return req.WithContext(context.WithValue(req.Context(), UserContextKey, claims))
}

func TestIdempotency_ReplaysResponse(t *testing.T) {
	idem, _ := newIdempotency(t)
	var calls int32
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"newCharge":{"id":"c-1"}}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, post("k-1"))
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get(ReplayedHeader))

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, post("k-1"))
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(ReplayedHeader))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"newCharge":{"id":"c-1"}}`, second.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// a different key runs the handler again
	handler.ServeHTTP(httptest.NewRecorder(), post("k-2"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotency_PendingKeyConflicts(t *testing.T) {
	idem, mr := newIdempotency(t)
	require.NoError(t, mr.Set("idempotency:u-1:/api/trips/t-1/charges:k-1", pendingMarker))

	called := false
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, post("k-1"))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, called)
}

func TestIdempotency_ServerErrorReleasesKey(t *testing.T) {
	idem, mr := newIdempotency(t)
	fail := true
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, post("k-1"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, mr.Exists("idempotency:u-1:/api/trips/t-1/charges:k-1"))

	fail = false
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, post("k-1"))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, mr.Exists("idempotency:u-1:/api/trips/t-1/charges:k-1"))
}

func TestIdempotency_ClientErrorsAreCached(t *testing.T) {
	idem, _ := newIdempotency(t)
	var calls int32
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeError(w, http.StatusBadRequest, "amount exceeds pending balance")
	}))

	handler.ServeHTTP(httptest.NewRecorder(), post("k-1"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, post("k-1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "amount exceeds pending balance")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestIdempotency_PassThrough(t *testing.T) {
	idem, mr := newIdempotency(t)
	var calls int32
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))

	// no key
	handler.ServeHTTP(httptest.NewRecorder(), post(""))
	handler.ServeHTTP(httptest.NewRecorder(), post(""))
	// not a POST
	req := httptest.NewRequest(http.MethodPatch, "/api/trips/t-1", nil)
	req.Header.Set(IdempotencyHeader, "k-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Empty(t, mr.Keys())

	// redis down: requests still served
	mr.Close()
	handler.ServeHTTP(httptest.NewRecorder(), post("k-9"))
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestIdempotency_Disabled(t *testing.T) {
	assert.Nil(t, NewIdempotency(nil, time.Hour, nil))

	var idem *Idempotency
	called := false
	idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })).
		ServeHTTP(httptest.NewRecorder(), post("k-1"))
	assert.True(t, called)
}

func TestIdempotency_ReleasesKeyAfterClientGone(t *testing.T) {
	idem, mr := newIdempotency(t)
	const redisKey = "idempotency:u-1:/api/trips/t-1/charges:k-1"

	req := post("k-1")
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	fail := true
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			assert.Equal(t, pendingTTL, mr.TTL(redisKey), "reservation uses the short pending ttl")
			cancel()
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req.WithContext(ctx))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, mr.Exists(redisKey))

	fail = false
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, post("k-1"))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, time.Hour, mr.TTL(redisKey), "stored response keeps the full ttl")
}

func TestIdempotency_ReleasesKeyOnPanic(t *testing.T) {
	idem, mr := newIdempotency(t)
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	assert.PanicsWithValue(t, "boom", func() {
		handler.ServeHTTP(httptest.NewRecorder(), post("k-1"))
	})
	assert.False(t, mr.Exists("idempotency:u-1:/api/trips/t-1/charges:k-1"))
}
