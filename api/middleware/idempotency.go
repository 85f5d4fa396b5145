package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/packfinderz-inventory/api/responses"
	pkgerrors "github.com/angelmondragon/packfinderz-inventory/pkg/errors"
	"github.com/angelmondragon/packfinderz-inventory/pkg/logger"
	pkgredis "github.com/angelmondragon/packfinderz-inventory/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	stockReplayTTL       = 24 * time.Hour
	reservationReplayTTL = 7 * 24 * time.Hour
)

// replayRule selects the mutations whose responses are remembered. Patterns
// use path.Match syntax against the cleaned request path.
type replayRule struct {
	method  string
	pattern string
	ttl     time.Duration
}

var replayRules = []replayRule{
	{http.MethodPost, "/api/inventory", stockReplayTTL},
	{http.MethodPost, "/api/inventory/items/*/restock", stockReplayTTL},
	{http.MethodPost, "/api/inventory/items/*/increase", stockReplayTTL},
	{http.MethodPost, "/api/inventory/items/*/sell", stockReplayTTL},
	{http.MethodPost, "/api/inventory/items/*/decrease", stockReplayTTL},
	{http.MethodPost, "/api/inventory/items/*/return", stockReplayTTL},

	{http.MethodPost, "/api/inventory/reservations", reservationReplayTTL},
	{http.MethodPost, "/api/inventory/reservations/*/confirm", reservationReplayTTL},
	{http.MethodPost, "/api/inventory/reservations/*/cancel", reservationReplayTTL},
	{http.MethodPost, "/api/inventory/reservations/batch/*", reservationReplayTTL},
	{http.MethodDelete, "/api/inventory/reservations/order/*", reservationReplayTTL},
}

type replayRecord struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	BodyHash    string `json:"body_hash"`
}

// Idempotency replays the stored response when a mutation is retried with the
// same Idempotency-Key and body. Reusing a key with a different body is
// rejected. Server errors are not stored so the caller may retry them.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, requestPath(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			token := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if token == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.IdempotencyKey(replayScope(r), token)
			bodyHash := hashBody(body)

			stored, err := store.Get(ctx, key)
			switch {
			case err != nil && !errors.Is(err, redis.Nil):
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			case stored != "":
				var record replayRecord
				if err := json.Unmarshal([]byte(stored), &record); err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
					return
				}
				if record.BodyHash != bodyHash {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				record.replay(w)
				return
			}

			capture := &responseCapture{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)
			if capture.status >= http.StatusInternalServerError {
				return
			}

			payload, err := json.Marshal(replayRecord{
				Status:      capture.status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				BodyHash:    bodyHash,
			})
			if err == nil {
				_, err = store.SetNX(ctx, key, string(payload), ttl)
			}
			if err != nil && logg != nil {
				logg.Error(ctx, "idempotency.persist", err)
			}
		})
	}
}

func (rec replayRecord) replay(w http.ResponseWriter) {
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}

// replayScope keeps keys from different clients and endpoints apart.
func replayScope(r *http.Request) string {
	return strings.Join([]string{ClientIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// requestPath is matched instead of the chi route pattern, which is still
// partial while subrouter middleware runs.
func requestPath(r *http.Request) string {
	if r == nil || r.URL == nil {
		return ""
	}
	if p := strings.TrimSuffix(r.URL.Path, "/"); p != "" {
		return p
	}
	return "/"
}

func routeTTL(method, requestPath string) (time.Duration, bool) {
	for _, rule := range replayRules {
		if rule.method != method {
			continue
		}
		if ok, _ := path.Match(rule.pattern, requestPath); ok {
			return rule.ttl, true
		}
	}
	return 0, false
}

type responseCapture struct {
	http.ResponseWriter
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

func (c *responseCapture) WriteHeader(code int) {
	if !c.wroteHeader {
		c.status = code
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	c.wroteHeader = true
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
