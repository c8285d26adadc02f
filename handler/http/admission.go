package http

import (
	"context"
	"net/http"

	"github.com/truxe-io/admission/core"
)

// Admitted acknowledges a request which passed the admission chain. The
// decision itself travels in the rate-limit headers set by Admit.
func Admitted() Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusNoContent, nil)
	}
}

// AuthFailure records one failed authentication reported by the auth layer so
// the abuse detector sees credential stuffing that never trips a limit.
func AuthFailure(fn core.AuthFailureFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		fn(clientAddress(r))

		respondJSON(w, http.StatusNoContent, nil)
	}
}
