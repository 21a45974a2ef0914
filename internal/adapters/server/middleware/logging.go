package middleware

import (
	"net/http"
	"time"

	"zapfilter/platform/logger"
)

// responseWriter captures the status code and body size of a response.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// HTTPLogger logs every request with its outcome. Probe endpoints log
// at debug to keep the output readable.
func HTTPLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(ww, r)

			fields := map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status_code": ww.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
				"size_bytes":  ww.size,
				"ip":          getClientIP(r),
			}
			if query := r.URL.RawQuery; query != "" {
				fields["query"] = query
			}

			message := "HTTP request processed"
			switch {
			case ww.statusCode >= 500:
				log.ErrorWithFields(message, fields)
			case ww.statusCode >= 400:
				log.WarnWithFields(message, fields)
			default:
				if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
					log.DebugWithFields(message, fields)
				} else {
					log.InfoWithFields(message, fields)
				}
			}
		})
	}
}
