package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hyperengineering/contactbox/internal/export"
	"github.com/hyperengineering/contactbox/internal/ratelimit"
	"github.com/hyperengineering/contactbox/internal/store"
	"github.com/hyperengineering/contactbox/internal/validation"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

type problemType struct {
	typeURI string
	title   string
}

var problemTypes = map[int]problemType{
	http.StatusBadRequest:            {"https://contactbox.dev/errors/validation-error", "Validation Error"},
	http.StatusUnauthorized:          {"https://contactbox.dev/errors/unauthorized", "Unauthorized"},
	http.StatusNotFound:              {"https://contactbox.dev/errors/not-found", "Not Found"},
	http.StatusRequestEntityTooLarge: {"https://contactbox.dev/errors/payload-too-large", "Payload Too Large"},
	http.StatusTooManyRequests:       {"https://contactbox.dev/errors/rate-limit", "Too Many Requests"},
	http.StatusInternalServerError:   {"https://contactbox.dev/errors/internal-error", "Internal Server Error"},
	http.StatusServiceUnavailable:    {"https://contactbox.dev/errors/service-unavailable", "Service Unavailable"},
}

func newProblem(r *http.Request, status int, detail string) Problem {
	pt, ok := problemTypes[status]
	if !ok {
		pt = problemType{"https://contactbox.dev/errors/unknown", http.StatusText(status)}
	}
	return Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}
}

func writeProblemBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	writeProblemBody(w, status, newProblem(r, status, detail))
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors"`
}

// WriteProblemWithErrors writes a 400 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	writeProblemBody(w, http.StatusBadRequest, ProblemWithErrors{
		Problem: newProblem(r, http.StatusBadRequest, detail),
		Errors:  errs,
	})
}

// RateLimitProblem carries the wait time in seconds alongside the problem.
type RateLimitProblem struct {
	Problem
	RetryAfter int `json:"retry_after"`
}

// WriteRateLimited writes a 429 with a Retry-After header.
func WriteRateLimited(w http.ResponseWriter, r *http.Request, le *ratelimit.LimitedError) {
	secs := le.RetryAfterSeconds()
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeProblemBody(w, http.StatusTooManyRequests, RateLimitProblem{
		Problem:    newProblem(r, http.StatusTooManyRequests, "Too many submissions, please try again later"),
		RetryAfter: secs,
	})
}

// MapError converts domain errors to Problem Details responses.
// Internal error text is never sent to the client.
func MapError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.ValidationError
	if errors.As(err, &verr) {
		WriteProblemWithErrors(w, r, verr.Error(), []validation.ValidationError{*verr})
		return
	}
	if le, ok := ratelimit.AsLimited(err); ok {
		WriteRateLimited(w, r, le)
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Submission not found")
	case errors.Is(err, export.ErrNotConfigured):
		WriteProblem(w, r, http.StatusServiceUnavailable, "Export archive storage is not configured")
	default:
		slog.Error("request failed",
			"component", "api",
			"path", r.URL.Path,
			"method", r.Method,
			"request_id", requestID(r),
			"storage_error", store.IsStorageError(err),
			"error", err,
		)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
