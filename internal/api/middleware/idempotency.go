// internal/api/middleware/idempotency.go
package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"tradebybarter-ledger/internal/api/types"
	"tradebybarter-ledger/internal/cache"
	"tradebybarter-ledger/internal/util"
)

// HeaderIdempotencyKey is the request header clients set to make a POST or PUT safe to retry.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	maxIdempotencyKeyLen = 128

	// Matches the JSON body limit the handlers enforce.
	maxIdempotentBodyBytes = 1 << 20
)

// responseRecorder copies what the handler writes so it can be replayed later.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Idempotency replays the stored response when a caller repeats a request with
// the same Idempotency-Key. Keys are scoped per caller, so it must run after
// Authenticate. Requests without the header pass through.
func Idempotency(store cache.IdempotencyStore, ttl time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderIdempotencyKey)
			if key == "" || (r.Method != http.MethodPost && r.Method != http.MethodPut) {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLen {
				types.WriteError(w, http.StatusBadRequest, "Invalid Idempotency-Key", "key must be at most 128 characters")
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIdempotentBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					types.WriteError(w, http.StatusRequestEntityTooLarge, "Invalid request body", "request body too large")
					return
				}
				types.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			storeKey := UserIDFromContext(r.Context()) + ":" + key
			fingerprint := requestFingerprint(r, body)

			reserved, existing, err := store.Reserve(r.Context(), storeKey, fingerprint, ttl)
			if err != nil {
				// Fail open: Redis trouble must not take payments down.
				logger.Error("Idempotency store unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !reserved {
				replay(w, existing, fingerprint)
				return
			}

			rec := &responseRecorder{ResponseWriter: w}
			stored := false
			// Also runs while a handler panic unwinds towards Recoverer.
			defer func() {
				if stored {
					return
				}
				ctx, cancel := detachedContext(r.Context())
				defer cancel()
				if err := store.Release(ctx, storeKey); err != nil {
					logger.Warn("Failed to release idempotency key", "error", err)
				}
			}()

			next.ServeHTTP(rec, r)

			if rec.statusCode == 0 || rec.statusCode >= http.StatusInternalServerError {
				return
			}
			stored = true
			ctx, cancel := detachedContext(r.Context())
			defer cancel()
			if err := store.Save(ctx, storeKey, cache.CachedResponse{
				Fingerprint: fingerprint,
				StatusCode:  rec.statusCode,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			}, ttl); err != nil {
				logger.Error("Failed to save idempotent response", "error", err)
			}
		})
	}
}

// detachedContext outlives the request context, which may be cancelled by now.
func detachedContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), 2*time.Second)
}

func replay(w http.ResponseWriter, existing *cache.CachedResponse, fingerprint string) {
	switch {
	case existing.Fingerprint != fingerprint:
		types.WriteError(w, http.StatusConflict, "Idempotency conflict", util.ErrIdempotencyKeyReused.Error())
	case existing.Pending():
		types.WriteError(w, http.StatusConflict, "Idempotency conflict", util.ErrIdempotencyInFlight.Error())
	default:
		if existing.ContentType != "" {
			w.Header().Set("Content-Type", existing.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(existing.StatusCode)
		_, _ = w.Write(existing.Body)
	}
}

func requestFingerprint(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
