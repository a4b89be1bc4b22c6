package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/schema"
)

// statusError carries the HTTP status an endpoint error should map to.
// Errors without one are treated as internal.
type statusError struct {
	err  error
	code int
}

func (e *statusError) Error() string { return e.err.Error() }

func (e *statusError) Unwrap() error { return e.err }

func CodedErrorf(code int, format string, args ...any) error {
	return &statusError{err: fmt.Errorf(format, args...), code: code}
}

// writeError maps an endpoint error onto the response. Anything that is not
// a statusError is a bug in the handler, so it is logged and surfaced as a
// 500.
func writeError(w http.ResponseWriter, err error) {
	var serr *statusError
	if !errors.As(err, &serr) {
		slog.Error("recieved non coded error from endpoint", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if serr.code == http.StatusInternalServerError {
		slog.Error("internal server error received in endpoint", "error", err)
	}
	http.Error(w, err.Error(), serr.code)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("error serializing response body", "error", err)
		http.Error(w, fmt.Sprintf("error serializing response body: %v", err), http.StatusInternalServerError)
	}
}

// RestHandler adapts a (result, error) endpoint to http.HandlerFunc. A nil
// result serializes as an empty object so clients always get valid JSON.
func RestHandler(handler func(r *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r)
		if err != nil {
			writeError(w, err)
			return
		}

		if res == nil {
			res = struct{}{}
		}
		writeJSON(w, res)
	}
}

type StreamResponse func(yield func(any, error) bool)

type StreamMessage struct {
	Data  any
	Error string
	Code  int
}

// RestStreamHandler writes one JSON-encoded StreamMessage per yielded value,
// flushing after each so clients see snapshots as they happen. Errors inside
// the stream become messages rather than ending the response, since the
// status line is already written.
func RestStreamHandler(handler func(r *http.Request) (StreamResponse, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stream, err := handler(r)
		if err != nil {
			writeError(w, err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			slog.Error("response writer does not support flushing")
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		encoder := json.NewEncoder(w)
		for data, err := range stream {
			msg := StreamMessage{Data: data, Code: http.StatusOK}
			if err != nil {
				msg = StreamMessage{Error: err.Error(), Code: http.StatusInternalServerError}

				var serr *statusError
				if errors.As(err, &serr) {
					msg.Code = serr.code
				}
				if msg.Code == http.StatusInternalServerError {
					slog.Error("internal server error received in endpoint", "error", err)
				}
			}

			if writeErr := encoder.Encode(msg); writeErr != nil {
				slog.Error("error writing json response", "error", writeErr)
				return
			}
			flusher.Flush()
		}
	}
}

func ParseRequest[T any](r *http.Request) (T, error) {
	var data T
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		slog.Error("error parsing request body", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request body")
	}
	return data, nil
}

// queryDecoder is shared: gorilla/schema caches struct metadata, so a single
// decoder is safe for concurrent handlers.
var queryDecoder = schema.NewDecoder()

func ParseRequestQueryParams[T any](r *http.Request) (T, error) {
	var data T
	if err := r.ParseForm(); err != nil {
		slog.Error("error parsing form", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request query params")
	}

	if err := queryDecoder.Decode(&data, r.Form); err != nil {
		slog.Error("error decoding query params", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request query params")
	}
	return data, nil
}

func URLParamUUID(r *http.Request, key string) (uuid.UUID, error) {
	param := chi.URLParam(r, key)
	if param == "" {
		return uuid.Nil, CodedErrorf(http.StatusBadRequest, "missing {%v} url parameter", key)
	}

	id, err := uuid.Parse(param)
	if err != nil {
		return uuid.Nil, CodedErrorf(http.StatusBadRequest, "invalid uuid '%v' url parameter provided: %w", key, err)
	}
	return id, nil
}

var namePattern = regexp.MustCompile(`^[\w-]+$`)

func validateName(name string) error {
	if !namePattern.MatchString(name) {
		return CodedErrorf(http.StatusBadRequest, "invalid name '%s' provided: only alphanumeric characters, underscores, and hyphens are allowed", name)
	}
	return nil
}
