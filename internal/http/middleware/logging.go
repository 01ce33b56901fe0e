// Package middleware contains shared Gin middleware used by the listings API.
//
// This file covers request correlation, structured access logging, and panic
// recovery:
//
//   - RequestID() tags every request with a correlation ID, propagated via
//     the X-Request-ID header and the Gin context.
//   - Logger() emits a zerolog access line per request (method, route,
//     latency, status, sizes) and attaches a request-scoped logger that
//     handlers can enrich, e.g. lg.Info().Str("house_id", id).Msg("sold").
//   - Recovery() turns panics into a JSON 500 carrying the correlation ID.
//   - LoggerFrom() fetches the request-scoped logger inside handlers and
//     services.
//
// Wiring order matters: RequestID first, then Logger, then Recovery, so a
// panic in a handler is logged with the correlation ID already set. Query
// strings are capped before logging; scrape and import endpoints can carry
// long source URLs in their parameters.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key holding the request ID.
	requestIDKey = "requestID"
	// requestIDHeader propagates the correlation ID to and from clients.
	requestIDHeader = "X-Request-ID"
	// maxQueryLogLength caps how many bytes of the raw query string are logged.
	maxQueryLogLength = 2048
)

// RequestID reuses the incoming X-Request-ID when present (header lookup is
// case-insensitive) or mints a new UUIDv4. The ID is echoed on the response
// header and stored in the Gin context for the rest of the chain.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger writes one structured access line per request and stores a
// request-scoped zerolog.Logger under the "logger" context key.
//
// The route template is preferred over the raw path, so a hit on
// /api/v1/houses/:id logs as the template rather than the concrete UUID;
// unmatched requests fall back to the raw URL path. The level follows the
// outcome: error for 5xx or when Gin collected errors, warn for 4xx, info
// otherwise.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		uid, _ := c.Get("userID")
		path := c.FullPath()
		if path == "" {
			// Unmatched route, log the raw path.
			path = c.Request.URL.Path
		}

		l := log.With().
			Str("request_id", ctxString(rid)).
			Str("user_id", ctxString(uid)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("referer", c.Request.Referer()).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength)).
			// ContentLength is -1 when unknown.
			Int64("bytes_in", c.Request.ContentLength).
			Logger()

		c.Set("logger", &l)

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		bytesOut := c.Writer.Size()

		ev := l.With().
			Int("status", status).
			Dur("latency", latency).
			Int("bytes_out", bytesOut).
			Logger()

		switch {
		case len(c.Errors) > 0:
			ev.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			ev.Error().Msg("request")
		case status >= 400:
			ev.Warn().Msg("request")
		default:
			ev.Info().Msg("request")
		}
	}
}

// Recovery intercepts panics, logs the value with a stack trace, and answers
// with the API's JSON error shape:
//
//	{ "request_id": "...", "code": "internal_error", "message": "internal server error" }
//
// When the handler already wrote part of a response (a streaming export, for
// example) only the status is aborted; no JSON body is appended.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rid, _ := c.Get(requestIDKey)
				log.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", ctxString(rid)).
					Msg("panic recovered")

				if !c.Writer.Written() {
					c.Header("Content-Type", "application/json")
					c.Header(requestIDHeader, ctxString(rid))
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"request_id": ctxString(rid),
						"code":       "internal_error",
						"message":    "internal server error",
					})
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped zerolog.Logger attached by Logger().
// Outside a logged request it returns the global logger, so callers never
// need a nil check.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get("logger"); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// ctxString unwraps a Gin context value as a string, empty when absent or of
// another type.
func ctxString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate caps s at max bytes, appending an ellipsis. max <= 0 disables the
// cap. Byte-based slicing is fine here, the result is only logged.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
