package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	// IdempotencyHeader carries the client's key for a POST.
	IdempotencyHeader = "Idempotency-Key"
	// ReplayedHeader marks a response served from the idempotency cache.
	ReplayedHeader = "Idempotent-Replayed"

	pendingMarker = "pending"
	// pendingTTL caps how long a reservation can block retries if the
	// release itself never happens.
	pendingTTL = 2 * time.Minute
	// storeTimeout bounds the writes made after the handler returns.
	storeTimeout = 5 * time.Second
)

// Idempotency makes POST requests safe to re-submit. The first request with
// a key reserves it; its response is stored and replayed for repeats. A 5xx
// response releases the key so the client can try again.
type Idempotency struct {
	client     *redis.Client
	ttl        time.Duration
	pendingTTL time.Duration
	logger     log.FieldLogger
}

// cachedResponse is what gets stored under a finished key.
type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// NewIdempotency returns nil when client is nil, which disables the
// middleware.
func NewIdempotency(client *redis.Client, ttl time.Duration, logger log.FieldLogger) *Idempotency {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Idempotency{client: client, ttl: ttl, pendingTTL: min(pendingTTL, ttl), logger: logger}
}

// Middleware guards POSTs that carry an Idempotency-Key.
func (i *Idempotency) Middleware(next http.Handler) http.Handler {
	if i == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyHeader)
		if r.Method != http.MethodPost || key == "" {
			next.ServeHTTP(w, r)
			return
		}
		redisKey := i.redisKey(r, key)
		logger := i.logger.WithField("idempotency_key", key)

		reserved, err := i.client.SetNX(r.Context(), redisKey, pendingMarker, i.pendingTTL).Result()
		if err != nil {
			// without redis the request still goes through, just unprotected
			logger.WithError(err).Warn("idempotency store unavailable")
			next.ServeHTTP(w, r)
			return
		}
		if !reserved {
			i.replay(w, r, redisKey, logger)
			return
		}

		// the key is settled even when the client is gone or the handler panics
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), storeTimeout)
		defer cancel()
		finished := false
		defer func() {
			if !finished {
				i.release(ctx, redisKey, logger)
			}
		}()

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		finished = true

		if rec.status >= http.StatusInternalServerError {
			i.release(ctx, redisKey, logger)
			return
		}
		payload, err := json.Marshal(cachedResponse{
			Status:      rec.status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		})
		if err == nil {
			err = i.client.Set(ctx, redisKey, payload, i.ttl).Err()
		}
		if err != nil {
			logger.WithError(err).Warn("failed to store idempotent response")
		}
	})
}

func (i *Idempotency) release(ctx context.Context, redisKey string, logger log.FieldLogger) {
	if err := i.client.Del(ctx, redisKey).Err(); err != nil {
		logger.WithError(err).Warn("failed to release idempotency key")
	}
}

func (i *Idempotency) replay(w http.ResponseWriter, r *http.Request, redisKey string, logger log.FieldLogger) {
	raw, err := i.client.Get(r.Context(), redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		writeError(w, http.StatusConflict, "Request with this Idempotency-Key is being processed")
		return
	}
	if err != nil {
		logger.WithError(err).Error("failed to read idempotent response")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if string(raw) == pendingMarker {
		writeError(w, http.StatusConflict, "Request with this Idempotency-Key is being processed")
		return
	}
	var cached cachedResponse
	if err := json.Unmarshal(raw, &cached); err != nil {
		logger.WithError(err).Error("corrupt idempotent response")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if cached.ContentType != "" {
		w.Header().Set("Content-Type", cached.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(cached.Status)
	_, _ = w.Write(cached.Body)
}

// redisKey scopes the client key by caller and route so two users cannot
// collide on the same key.
func (i *Idempotency) redisKey(r *http.Request, key string) string {
	user := "anonymous"
	if claims, ok := GetUserFromContext(r.Context()); ok {
		user = claims.UserID
	}
	return "idempotency:" + user + ":" + r.URL.Path + ":" + key
}

type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
