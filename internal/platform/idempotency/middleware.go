package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/grocery-storefront/api/internal/platform/auth"
	"github.com/grocery-storefront/api/internal/platform/httpx"
	"github.com/grocery-storefront/api/internal/platform/requestctx"
)

const (
	// HeaderName carries the client chosen key.
	HeaderName = "Idempotency-Key"
	// ReplayHeaderName is set on replayed responses.
	ReplayHeaderName = "Idempotent-Replayed"

	// DefaultMaxBodyBytes matches the JSON body limit of the order handlers.
	DefaultMaxBodyBytes int64 = 64 << 10

	maxKeyLength = 255
)

type middlewareConfig struct {
	ttl     time.Duration
	clock   func() time.Time
	maxBody int64
}

// MiddlewareOption customises Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithTTL sets how long completed responses are replayed.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithMaxBodyBytes bounds how much of a guarded request body is buffered for fingerprinting.
func WithMaxBodyBytes(limit int64) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if limit > 0 {
			cfg.maxBody = limit
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware guards the wrapped handler. Requests without the header pass straight through.
// Responses below 500 are stored and replayed; server errors release the key so the client may
// retry. Store failures are logged and the request proceeds unguarded.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{ttl: DefaultTTL, clock: time.Now, maxBody: DefaultMaxBodyBytes}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := strings.TrimSpace(r.Header.Get(HeaderName))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeValidation, "Idempotency-Key çok uzun.", http.StatusBadRequest))
				return
			}

			body, err := readAndReplayBody(w, r, cfg.maxBody)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeValidation, "", http.StatusRequestEntityTooLarge))
					return
				}
				httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeValidation, "İstek gövdesi okunamadı.", http.StatusBadRequest))
				return
			}

			scoped := scopedKey(key, requester(r))
			fingerprint := requestFingerprint(r, body)
			logger := requestctx.Logger(ctx).Named("idempotency")

			reservation, err := store.Reserve(ctx, scoped, fingerprint, cfg.clock().UTC(), cfg.ttl)
			switch {
			case errors.Is(err, ErrFingerprintMismatch):
				httpx.WriteError(ctx, w, httpx.NewError("IDEMPOTENCY_KEY_REUSED", "Bu Idempotency-Key farklı bir istek için kullanıldı.", http.StatusUnprocessableEntity))
				return
			case err != nil:
				logger.Warn("reserve failed, continuing without replay protection", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			switch reservation.State {
			case ReservationStateCompleted:
				writeStoredResponse(w, reservation.Record)
				return
			case ReservationStatePending:
				httpx.WriteError(ctx, w, httpx.NewError("IDEMPOTENCY_IN_PROGRESS", "Aynı istek hâlâ işleniyor.", http.StatusConflict))
				return
			}

			recorder := newResponseRecorder(w)
			next.ServeHTTP(recorder, r)

			// The request context may already be cancelled by a timeout; finish bookkeeping anyway.
			storeCtx := context.WithoutCancel(ctx)
			if recorder.Status() >= http.StatusInternalServerError {
				if err := store.Release(storeCtx, scoped, fingerprint); err != nil {
					logger.Warn("release failed", zap.Error(err))
				}
			} else {
				resp := Response{Status: recorder.Status(), ContentType: contentTypeOf(recorder.Header()), Body: recorder.Body()}
				if err := store.Complete(storeCtx, scoped, fingerprint, resp, cfg.clock().UTC(), cfg.ttl); err != nil {
					logger.Warn("complete failed", zap.Error(err))
				}
			}
			if err := recorder.Commit(); err != nil {
				logger.Debug("flush response failed", zap.Error(err))
			}
		})
	}
}

// readAndReplayBody buffers at most limit bytes and swaps in a replayable body. Larger bodies fail
// with *http.MaxBytesError.
func readAndReplayBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	reader := http.MaxBytesReader(w, r.Body, limit)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// requester scopes keys to the authenticated user, or to the client address for guests.
func requester(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.UID != "" {
		return "user:" + identity.UID
	}
	if ip := requestctx.ClientIP(r.Context()); ip != "" {
		return "guest:" + ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "guest:" + strings.TrimSpace(host)
}

func scopedKey(key, scope string) string {
	return scope + "|" + strings.TrimSpace(key)
}

func requestFingerprint(r *http.Request, body []byte) string {
	var builder strings.Builder
	builder.WriteString(strings.ToUpper(r.Method))
	builder.WriteString("|")
	builder.WriteString(r.URL.Path)
	builder.WriteString("|")
	builder.WriteString(r.URL.RawQuery)
	builder.WriteString("|")
	builder.WriteString(sha256Hex(body))
	return sha256Hex([]byte(builder.String()))
}

func writeStoredResponse(w http.ResponseWriter, record Record) {
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(ReplayHeaderName, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(record.ResponseBody) > 0 {
		_, _ = w.Write(record.ResponseBody)
	}
}

type responseRecorder struct {
	parent http.ResponseWriter
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseRecorder(parent http.ResponseWriter) *responseRecorder {
	return &responseRecorder{parent: parent, header: make(http.Header)}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 && status > 0 {
		r.status = status
	}
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(data)
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) Body() []byte {
	return r.body.Bytes()
}

func (r *responseRecorder) Commit() error {
	dst := r.parent.Header()
	for key, values := range r.header {
		dst[key] = append([]string(nil), values...)
	}
	r.parent.WriteHeader(r.Status())
	if r.body.Len() == 0 {
		return nil
	}
	_, err := r.parent.Write(r.body.Bytes())
	return err
}
