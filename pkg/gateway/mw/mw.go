// Package mw provides the gateway HTTP middleware chain.
package mw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/voxprep/voxprep/pkg/core"
	"github.com/voxprep/voxprep/pkg/gateway/apierror"
	"github.com/voxprep/voxprep/pkg/gateway/auth"
	"github.com/voxprep/voxprep/pkg/gateway/config"
)

type ctxKeyRequestID struct{}

func RequestIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKeyRequestID{}).(string)
	return id, ok && id != ""
}

// RequestID assigns every request an id, echoed in the X-Request-Id header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = randHex(16)
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.status == 0 {
		sw.status = code
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(p []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	n, err := sw.ResponseWriter.Write(p)
	sw.bytes += int64(n)
	return n, err
}

// AccessLog logs one line per completed request.
func AccessLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		reqID, _ := RequestIDFrom(r.Context())
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"bytes", sw.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", reqID,
		)
	})
}

// Recover turns handler panics into opaque 500 responses.
func Recover(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				reqID, _ := RequestIDFrom(r.Context())
				logger.Error("handler panic", "panic", rec, "path", r.URL.Path, "request_id", reqID)
				WriteJSONError(w, r, core.NewAPIError("internal error"), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Auth enforces bearer-key authentication per the configured mode.
func Auth(cfg config.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cfg.AuthMode == config.AuthModeDisabled {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := auth.ParseBearer(r)
		if !ok {
			if cfg.AuthMode == config.AuthModeOptional {
				next.ServeHTTP(w, r)
				return
			}
			WriteJSONError(w, r, core.NewPermissionError("missing bearer token", nil), http.StatusUnauthorized)
			return
		}
		if _, allowed := cfg.APIKeys[token]; !allowed {
			WriteJSONError(w, r, core.NewPermissionError("invalid api key", nil), http.StatusUnauthorized)
			return
		}
		ctx := auth.WithPrincipal(r.Context(), &auth.Principal{APIKey: token})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WriteJSONError writes an error envelope with an explicit status.
func WriteJSONError(w http.ResponseWriter, r *http.Request, err *core.Error, status int) {
	reqID, _ := RequestIDFrom(r.Context())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apierror.Envelope{Error: &apierror.Body{
		Kind:      err.Kind,
		Message:   err.Message,
		Code:      err.Code,
		RequestID: reqID,
	}})
}

func randHex(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(buf)
}
