package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/foldboard/pkg/metrics"
)

// MetricsMiddleware records request count and latency for endpoint. Failed
// requests are also counted by their API error code, e.g. invalid_submission
// or unknown_pass, so intake rejections and orchestrator faults stay apart.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		code := strconv.Itoa(wrapped.statusCode)
		metrics.RecordHTTPRequest(endpoint, r.Method, code, time.Since(start).Seconds())

		if wrapped.statusCode >= http.StatusBadRequest {
			errorType := wrapped.errorCode
			if errorType == "" {
				errorType = statusClass(wrapped.statusCode)
			}
			metrics.RecordErrorByEndpoint(endpoint, r.Method, errorType)
			metrics.RecordErrorByComponent("http", errorType)
		}
	}
}

// statusClass names responses that carry no API error code, such as result
// files missing from the sink.
func statusClass(status int) string {
	switch {
	case status >= http.StatusInternalServerError:
		return "internal_error"
	case status == http.StatusNotFound:
		return "not_found"
	default:
		return "client_error"
	}
}

// tagError attaches the API error code of the response to the metrics wrapper, if any.
func tagError(w http.ResponseWriter, code string) {
	if rw, ok := w.(*responseWriter); ok {
		rw.errorCode = code
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	errorCode   string
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}
