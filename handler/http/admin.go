package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/truxe-io/admission/core"
	"github.com/truxe-io/admission/service/detector"
)

type payloadRule struct {
	Max      int64 `json:"max"`
	WindowMs int64 `json:"windowMs"`
}

type payloadBlock struct {
	Address    string `json:"address"`
	DurationMs int64  `json:"durationMs"`
}

// RuleAdjust swaps one dimension rule of an operation for future windows.
func RuleAdjust(fn core.RuleAdjustFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var (
			vars      = mux.Vars(r)
			operation = vars["operation"]
			dimension = vars["dimension"]

			p payloadRule
		)

		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		if err := fn(operation, dimension, p.Max, p.WindowMs); err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		respondJSON(w, http.StatusNoContent, nil)
	}
}

// KeyReset clears one counter key.
func KeyReset(fn core.KeyResetFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		if err := fn(vars["namespace"], vars["key"]); err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		respondJSON(w, http.StatusNoContent, nil)
	}
}

// AddressBlock places an address on the temporary blocklist.
func AddressBlock(fn core.AddressBlockFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var p payloadBlock

		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		err := fn(p.Address, time.Duration(p.DurationMs)*time.Millisecond)
		if err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		respondJSON(w, http.StatusNoContent, nil)
	}
}

// AddressUnblock lifts a block before its TTL expires.
func AddressUnblock(fn core.AddressUnblockFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		if err := fn(vars["address"]); err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		respondJSON(w, http.StatusNoContent, nil)
	}
}

// Statistics returns the engine counters, breaker states and thresholds.
func Statistics(fn core.StatisticsFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, fn())
	}
}

// ThresholdsGet returns the active detection thresholds.
func ThresholdsGet(fn core.ThresholdsGetFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, fn())
	}
}

// ThresholdsSet swaps the detection thresholds.
func ThresholdsSet(fn core.ThresholdsSetFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var ts detector.Thresholds

		if err := json.NewDecoder(r.Body).Decode(&ts); err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		if err := fn(ts); err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		respondJSON(w, http.StatusNoContent, nil)
	}
}
