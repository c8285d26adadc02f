package http

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/truxe-io/admission/core"
	"github.com/truxe-io/admission/service/limiter"
)

// Identity headers set by the authentication layer in front of the engine.
const (
	headerEmail = "X-Truxe-Email"
	headerOrg   = "X-Truxe-Org"
	headerToken = "X-Truxe-Token"
	headerUser  = "X-Truxe-User"
)

// Admit evaluates the admission decision for every request and surfaces the
// standard rate-limit headers. Denials respond with 429, breaker shutdowns
// with 503.
func Admit(evaluate core.EvaluateFunc) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
			operation := "unknown"

			if current := mux.CurrentRoute(r); current != nil {
				operation = current.GetName()
			}

			res := evaluate(operation, core.Identifiers{
				Address: clientAddress(r),
				Email:   r.Header.Get(headerEmail),
				Org:     r.Header.Get(headerOrg),
				Token:   r.Header.Get(headerToken),
				User:    r.Header.Get(headerUser),
			})

			if res.Limit != limiter.Unlimited {
				w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
				w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			}

			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.FormatInt(res.RetryAfterSeconds(), 10))

				if res.Violated == core.ReasonBreaker {
					respondError(w, 0, wrapError(ErrServiceUnavailable, res.Violated))
					return
				}

				msg := res.Violated

				if res.Hint != "" {
					msg = msg + ": " + res.Hint
				}

				respondError(w, 0, wrapError(ErrLimitExceeded, msg))
				return
			}

			next(ctx, w, r)
		}
	}
}

// SecureHeaders adds a list of commonly recognised best-practice security
// headers.
func SecureHeaders() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Strict-Transport-Security", "max-age=63072000")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")

			next(ctx, w, r)
		}
	}
}

// DebugHeaders adds extra information encoded in a custom header namespace
// for potential tracing and debugging post-mortem.
func DebugHeaders(rev, host string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Truxe-Host", host)
			w.Header().Set("X-Truxe-Revision", rev)

			next(ctx, w, r)
		}
	}
}

func clientAddress(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ps := strings.Split(fwd, ",")
		return strings.TrimSpace(ps[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
