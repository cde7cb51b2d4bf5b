package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	TraceKey  contextKey = "trace"
	LoggerKey contextKey = "logger"
)

type TraceInfo struct {
	RequestID string
	StartTime time.Time
	UserAgent string
	RemoteIP  string
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

func newLoggingResponseWriter(w http.ResponseWriter) *loggingResponseWriter {
	return &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	if lrw.wroteHeader {
		return
	}
	lrw.statusCode = code
	lrw.wroteHeader = true
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if !lrw.wroteHeader {
		lrw.WriteHeader(http.StatusOK)
	}
	size, err := lrw.ResponseWriter.Write(b)
	lrw.size += int64(size)
	return size, err
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

// Logging attaches a request-scoped logger to the context and logs completion.
// It expects RequestID to run first.
func Logging(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			trace := GetTraceInfo(r.Context())
			if trace == nil {
				trace = &TraceInfo{StartTime: time.Now(), UserAgent: r.UserAgent(), RemoteIP: r.RemoteAddr}
			}

			entry := logger.WithFields(logrus.Fields{
				"request_id": trace.RequestID,
				"method":     r.Method,
				"path":       r.URL.Path,
				"remote_ip":  trace.RemoteIP,
			})
			ctx := context.WithValue(r.Context(), LoggerKey, entry)

			entry.Debug("Request started")

			lrw := newLoggingResponseWriter(w)
			next.ServeHTTP(lrw, r.WithContext(ctx))

			entry = entry.WithFields(logrus.Fields{
				"status":   lrw.statusCode,
				"duration": time.Since(trace.StartTime).String(),
				"size":     lrw.size,
			})

			switch {
			case lrw.statusCode >= 500:
				entry.Error("Request completed with server error")
			case lrw.statusCode >= 400:
				entry.Warn("Request completed with client error")
			default:
				entry.Info("Request completed")
			}
		})
	}
}

func GetTraceInfo(ctx context.Context) *TraceInfo {
	if trace, ok := ctx.Value(TraceKey).(*TraceInfo); ok {
		return trace
	}
	return nil
}

// GetRequestID returns the request id, or "" outside an HTTP request.
func GetRequestID(ctx context.Context) string {
	if trace := GetTraceInfo(ctx); trace != nil {
		return trace.RequestID
	}
	return ""
}

func GetLogger(ctx context.Context) *logrus.Entry {
	return LoggerFrom(ctx, logrus.StandardLogger())
}

// LoggerFrom returns the request-scoped entry if Logging attached one, and an
// entry on fallback otherwise.
func LoggerFrom(ctx context.Context, fallback *logrus.Logger) *logrus.Entry {
	if logger, ok := ctx.Value(LoggerKey).(*logrus.Entry); ok {
		return logger
	}
	return logrus.NewEntry(fallback).WithContext(ctx)
}
