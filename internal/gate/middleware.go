// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package gate

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/authgate/authgate/pkg/errutil"
)

// DefaultTimeout bounds a single engine call.
const DefaultTimeout = 2 * time.Second

// DecisionRecorder receives one observation per gated request.
type DecisionRecorder interface {
	RecordGateDecision(conclusion, reason string)
}

// Options configures Middleware.
type Options struct {
	Timeout  time.Duration
	Logger   *slog.Logger
	Recorder DecisionRecorder
}

// ErrorBody is the JSON body of a gate rejection.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Rejection bodies.
var (
	bodyBot       = ErrorBody{Error: "Forbidden", Message: "Automated requests are not allowed"}
	bodyShield    = ErrorBody{Error: "Forbidden", Message: "Shield request blocked"}
	bodyRateLimit = ErrorBody{Error: "Too Many Requests", Message: "Rate limit exceeded. Please try again later"}
	bodyDenied    = ErrorBody{Error: "Forbidden", Message: "Access denied"}
	bodyFailure   = ErrorBody{Error: "Internal server error", Message: "Something went wrong with security middleware"}
)

// Respond maps a denial to its status code and body.
func Respond(d Decision) (int, ErrorBody) {
	switch d.Reason {
	case ReasonBot:
		return http.StatusForbidden, bodyBot
	case ReasonShield:
		return http.StatusForbidden, bodyShield
	case ReasonRateLimit:
		return http.StatusTooManyRequests, bodyRateLimit
	default:
		return http.StatusForbidden, bodyDenied
	}
}

// Middleware consults engine before every request. Denials and engine
// failures are answered directly; the wrapped handler never runs for them.
func Middleware(engine Engine, opts Options) func(http.Handler) http.Handler {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	record := func(conclusion, reason string) {
		if opts.Recorder != nil {
			opts.Recorder.RecordGateDecision(conclusion, reason)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			decision, err := engine.Protect(ctx, r)
			cancel()

			if err != nil {
				errutil.LogError(r.Context(), logger, "security gate failed", err,
					"path", r.URL.Path,
					"ip", clientIP(r.RemoteAddr))
				record("ERROR", "")
				writeJSON(w, http.StatusInternalServerError, bodyFailure)
				return
			}

			record(string(decision.Conclusion), string(decision.Reason))
			if !decision.IsDenied() {
				next.ServeHTTP(w, r)
				return
			}

			status, body := Respond(decision)
			logger.WarnContext(r.Context(), "request denied by security gate",
				"reason", string(decision.Reason),
				"status", status,
				"path", r.URL.Path,
				"ip", clientIP(r.RemoteAddr))
			if wait := decision.RetryAfter(); wait > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			}
			writeJSON(w, status, body)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(body)
}
