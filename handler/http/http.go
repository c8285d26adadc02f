package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gomodule/redigo/redis"
	"github.com/jmoiron/sqlx"
)

const pgHealthcheck = `SELECT 1`

// Handler is the admission specific http.HandlerFunc expecting a
// context.Context.
type Handler func(context.Context, http.ResponseWriter, *http.Request)

// Middleware can be used to chain Handlers with different responsibilities.
type Middleware func(Handler) Handler

// Chain takes a variadic number of Middlewares and returns a combined
// Middleware.
func Chain(ms ...Middleware) Middleware {
	return func(handler Handler) Handler {
		for i := len(ms) - 1; i >= 0; i-- {
			handler = ms[i](handler)
		}

		return handler
	}
}

// Wrap takes a Middleware and Handler and returns an http.HandlerFunc.
func Wrap(
	middleware Middleware,
	handler Handler,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware(handler)(context.Background(), w, r)
	}
}

// Health checks for liveliness of backing services and responds with status.
func Health(pg *sqlx.DB, rPool *redis.Pool) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		res := struct {
			Healthy  bool            `json:"healthy"`
			Services map[string]bool `json:"services"`
		}{
			Healthy: true,
			Services: map[string]bool{
				"postgres": true,
				"redis":    true,
			},
		}

		if pg != nil {
			if _, err := pg.Exec(pgHealthcheck); err != nil {
				res.Healthy = false
				res.Services["postgres"] = false
			}
		}

		conn := rPool.Get()
		if err := conn.Err(); err != nil {
			res.Healthy = false
			res.Services["redis"] = false
		}
		conn.Close()

		if !res.Healthy {
			respondJSON(w, http.StatusInternalServerError, &res)
			return
		}

		respondJSON(w, http.StatusOK, &res)
	}
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondError(w http.ResponseWriter, code int, err error) {
	statusCode := http.StatusInternalServerError

	switch unwrapError(err) {
	case ErrBadRequest:
		statusCode = http.StatusBadRequest
	case ErrLimitExceeded:
		statusCode = http.StatusTooManyRequests
	case ErrServiceUnavailable:
		statusCode = http.StatusServiceUnavailable
	case ErrUnauthorized:
		statusCode = http.StatusUnauthorized
	}

	respondJSON(w, statusCode, struct {
		Errors []apiError `json:"errors"`
	}{
		Errors: []apiError{
			{Code: code, Message: err.Error()},
		},
	})
}

func respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}
