package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/tenderflow-backend/api/responses"
	pkgerrors "github.com/angelmondragon/tenderflow-backend/pkg/errors"
	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	// ReplayedHeader marks a response served from the replay store.
	ReplayedHeader = "Idempotent-Replayed"

	defaultReplayTTL = 24 * time.Hour
	// claimTTL bounds how long a crashed request can block its key.
	claimTTL = time.Minute
)

// ReplayStore keeps finished responses per Idempotency-Key. pkg/redis
// satisfies it.
type ReplayStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) (bool, error)
	IdempotencyKey(scope, key string) string
}

type replayRecord struct {
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the stored response when a caller repeats a request
// with the same Idempotency-Key. Requests without the header, or with a nil
// store, pass straight through. A key reused with a different body, or while
// the first request is still running, is a conflict. 5xx responses are not
// stored so the caller can retry. Must run after Auth.
func Idempotency(store ReplayStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = defaultReplayTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if store == nil || raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if !validRequestID(raw) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation,
					"Idempotency-Key must be 1-64 characters of letters, digits, '-', '_', '.' or ':'"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unable to read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := requestHash(body)
			key := store.IdempotencyKey(strings.Join([]string{UserIDFromContext(ctx), r.Method, r.URL.Path}, "|"), raw)
			if logg != nil {
				ctx = logg.WithField(ctx, "idempotency_key", raw)
			}

			claim, _ := json.Marshal(replayRecord{Pending: true, RequestHash: hash})
			claimed, err := store.SetNX(ctx, key, string(claim), claimTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency store unavailable"))
				return
			}
			if !claimed {
				replay(ctx, logg, w, store, key, hash)
				return
			}

			capture := &captureWriter{ResponseWriter: w}
			next.ServeHTTP(capture, r.WithContext(ctx))

			// The response is already written; only bookkeeping is left.
			bg := context.WithoutCancel(ctx)
			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				if _, err := store.ReleaseLock(bg, key, string(claim)); err != nil && logg != nil {
					logg.Error(ctx, "failed to release idempotency claim", err)
				}
				return
			}
			record, _ := json.Marshal(replayRecord{
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				RequestHash: hash,
			})
			if err := store.Set(bg, key, string(record), ttl); err != nil && logg != nil {
				logg.Error(ctx, "failed to store idempotent response", err)
			}
		})
	}
}

func replay(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, store ReplayStore, key, hash string) {
	stored, found, err := store.Get(ctx, key)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency store unavailable"))
		return
	}
	var record replayRecord
	if found {
		if err := json.Unmarshal([]byte(stored), &record); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "corrupt idempotency record"))
			return
		}
	}
	switch {
	case found && record.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "Idempotency-Key was already used with a different request body"))
		return
	case !found, record.Pending:
		// A lapsed claim reads as not found until the first request stores.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this Idempotency-Key is still in progress"))
		return
	}

	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(record.Body)
}

func requestHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type captureWriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *captureWriter) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *captureWriter) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
