package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"formcore/pkg/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// writeView renders a GET view, echoing any error carried by a redirect.
func writeView(w http.ResponseWriter, r *http.Request, payload map[string]any) {
	if msg := r.URL.Query().Get("error"); msg != "" {
		payload["error"] = msg
	}
	writeJSON(w, http.StatusOK, payload)
}

// redirect issues a 303 to target, attaching message as the error parameter.
func redirect(w http.ResponseWriter, r *http.Request, target, message string) {
	if message != "" {
		target += "?" + url.Values{"error": {message}}.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// fail maps a service error onto the response. Rejected input and denied
// access redirect to fallback; missing records are 404; anything else is
// logged and reported as 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrPermissionDenied):
		redirect(w, r, fallback, "you do not have permission to do that")
	case errors.Is(err, domain.ErrValidation):
		redirect(w, r, fallback, userMessage(err))
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// userMessage flattens joined validation errors into one line.
func userMessage(err error) string {
	var parts []string
	var walk func(error)
	walk = func(e error) {
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				walk(inner)
			}
			return
		}
		var ve domain.ValidationError
		if errors.As(e, &ve) {
			parts = append(parts, ve.Message)
			return
		}
		parts = append(parts, e.Error())
	}
	walk(err)
	return strings.Join(parts, "; ")
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"bytes", sw.bytes,
			"duration", time.Since(start),
		)
	})
}
