package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/autopeca/marketplace/pkg/composables"
	"github.com/autopeca/marketplace/pkg/configuration"
	"github.com/autopeca/marketplace/pkg/constants"
	"github.com/autopeca/marketplace/pkg/httpapi"
)

type LoggerOptions struct {
	LogRequestBody  bool
	LogResponseBody bool
	MaxBodyLength   int

	RequestIDHeader string
	RealIPHeader    string
	Repanic         bool
}

func DefaultLoggerOptions() LoggerOptions {
	return LoggerOptions{
		LogRequestBody:  true,
		LogResponseBody: false,
		MaxBodyLength:   512,
		RequestIDHeader: "X-Request-ID",
		RealIPHeader:    "X-Real-IP",
	}
}

func LoggerOptionsFrom(conf *configuration.Configuration) LoggerOptions {
	opts := DefaultLoggerOptions()
	if conf.RequestIDHeader != "" {
		opts.RequestIDHeader = conf.RequestIDHeader
	}
	if conf.RealIPHeader != "" {
		opts.RealIPHeader = conf.RealIPHeader
	}
	opts.LogResponseBody = conf.LogrusLogLevel() >= logrus.DebugLevel
	return opts
}

type responseCaptureWriter struct {
	http.ResponseWriter
	statusCode    int
	statusWritten bool
	body          *bytes.Buffer
	maxBody       int
}

func (w *responseCaptureWriter) WriteHeader(code int) {
	if !w.statusWritten {
		w.statusCode = code
		w.statusWritten = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *responseCaptureWriter) Status() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}

func (w *responseCaptureWriter) Write(b []byte) (int, error) {
	if room := w.maxBody - w.body.Len(); room > 0 {
		w.body.Write(b[:min(room, len(b))])
	}
	w.statusWritten = true
	return w.ResponseWriter.Write(b)
}

func (w *responseCaptureWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *responseCaptureWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
}

var tracer = otel.Tracer("autopeca-middleware")

func TracedMiddleware(name string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(
				r.Context(),
				"middleware."+name,
				trace.WithAttributes(
					attribute.String("middleware.name", name),
					attribute.String("http.method", r.Method),
					attribute.String("http.url", r.URL.String()),
				),
			)
			defer span.End()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func readBody(r *http.Request, limit int) (string, error) {
	if r.Body == nil {
		return "", nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	if len(data) > limit {
		data = data[:limit]
	}
	return string(data), nil
}

// WithLogger attaches a request-scoped logrus entry and a tracing span to every request,
// recovers panics into a JSON 500 and logs completion.
func WithLogger(logger *logrus.Logger, opts LoggerOptions) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := r.Header.Get(opts.RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			ip, _ := realIP(r, opts.RealIPHeader)

			fieldsLogger := logger.WithFields(logrus.Fields{
				"request-id": requestID,
				"path":       r.URL.Path,
				"method":     r.Method,
			})
			fieldsLogger.WithFields(logrus.Fields{
				"ip":         ip,
				"user-agent": r.UserAgent(),
			}).Debug("request started")

			if opts.LogRequestBody && strings.Contains(r.Header.Get("Content-Type"), "application/json") {
				body, err := readBody(r, opts.MaxBodyLength)
				if err != nil {
					fieldsLogger.WithError(err).Error("failed to read request-body")
					_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "failed to read request body", map[string]string{"request_id": requestID})
					return
				}
				if body != "" {
					fieldsLogger.WithField("request-body", body).Debug("request-body captured")
				}
			}

			propagator := propagation.TraceContext{}
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(
				ctx,
				"http.request",
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.route", r.URL.Path),
					attribute.String("http.request_id", requestID),
					attribute.String("net.peer.ip", ip),
				),
			)
			defer span.End()

			if sc := span.SpanContext(); sc.HasTraceID() {
				w.Header().Set("X-Trace-Id", sc.TraceID().String())
				fieldsLogger = fieldsLogger.WithField("trace-id", sc.TraceID().String())
			}
			w.Header().Set("X-Request-Id", requestID)

			ctx = composables.WithLogger(ctx, fieldsLogger)
			ctx = composables.WithParams(ctx, &composables.Params{RequestID: requestID, IP: ip, UserAgent: r.UserAgent()})
			ctx = withValue(ctx, constants.RequestStart, start)

			wrapped := &responseCaptureWriter{ResponseWriter: w, body: &bytes.Buffer{}, maxBody: opts.MaxBodyLength}
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				fieldsLogger.WithFields(logrus.Fields{
					"panic":    recovered,
					"stack":    string(debug.Stack()),
					"duration": time.Since(start),
				}).Error("panic recovered in request handler")
				if !wrapped.statusWritten {
					wrapped.Header().Set("Content-Type", "application/json")
					wrapped.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(wrapped).Encode(httpapi.ErrorEnvelope{
						Code:    "INTERNAL_SERVER_ERROR",
						Message: "internal server error",
						Meta:    map[string]string{"request_id": requestID},
					})
				}
				if opts.Repanic {
					panic(recovered)
				}
			}()

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			status := wrapped.Status()
			duration := time.Since(start)
			entry := fieldsLogger.WithFields(logrus.Fields{
				"duration":     duration,
				"status-code":  status,
				"status-class": status / 100,
			})
			if opts.LogResponseBody && wrapped.body.Len() > 0 {
				entry = entry.WithField("response-body", wrapped.body.String())
			}
			entry.Info("request completed")

			span.SetAttributes(
				attribute.Int64("http.request_duration_ms", duration.Milliseconds()),
				attribute.Int("http.status_code", status),
			)
		})
	}
}
