package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/muurk/dantescan/internal/discovery"
	"github.com/muurk/dantescan/internal/version"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /devices", s.handleDevices)
	s.route(mux, "GET /devices/{index}", s.handleDevice)
	s.route(mux, "POST /refresh", s.handleRefresh)
	s.route(mux, "GET /ws", s.handleWebSocket)
	s.route(mux, "GET /version", s.handleVersion)
	s.route(mux, "GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// route registers handler under pattern, wrapped with request logging,
// panic recovery and metrics labelled by pattern.
func (s *Server) route(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
				)
				if !sw.wroteHeader {
					writeError(sw, http.StatusInternalServerError, "an unexpected error occurred", "")
				}
			}

			elapsed := time.Since(start)
			s.logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Duration("duration", elapsed),
				zap.String("remote", r.RemoteAddr),
			)
			if s.metrics != nil {
				s.metrics.ObserveHTTP(r.Method, pattern, sw.status, elapsed)
			}
		}()

		handler(sw, r)
	}))
}

// SnapshotPayload is the JSON form of a snapshot.
type SnapshotPayload struct {
	Generation uint64             `json:"generation"`
	BuiltAt    *time.Time         `json:"built_at,omitempty"`
	Count      int                `json:"count"`
	Devices    []discovery.Record `json:"devices"`
}

func newSnapshotPayload(snap *discovery.Snapshot) *SnapshotPayload {
	records := snap.Records()
	if records == nil {
		records = []discovery.Record{}
	}
	p := &SnapshotPayload{
		Generation: snap.Generation,
		Count:      len(records),
		Devices:    records,
	}
	if !snap.BuiltAt.IsZero() {
		builtAt := snap.BuiltAt
		p.BuiltAt = &builtAt
	}
	return p
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSnapshotPayload(s.source.Snapshot()))
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid device index: %q", r.PathValue("index")), "")
		return
	}

	rec, err := s.source.DeviceInfo(index)
	if err != nil {
		writeDiscoveryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter(s.limiter.Limit())))
		writeError(w, http.StatusTooManyRequests, "refresh rate limit exceeded", "")
		return
	}

	if err := s.refresh(r.Context()); err != nil {
		writeDiscoveryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSnapshotPayload(s.source.Snapshot()))
}

// retryAfter is the whole number of seconds, at least one, until the
// limiter grants another token.
func retryAfter(limit rate.Limit) int {
	secs := math.Ceil(1 / float64(limit))
	if secs < 1 || math.IsNaN(secs) {
		return 1
	}
	if secs > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(secs)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

// writeDiscoveryError maps a discovery error type to an HTTP status.
func writeDiscoveryError(w http.ResponseWriter, err error) {
	var derr *discovery.Error
	if !errors.As(err, &derr) {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}

	status := http.StatusInternalServerError
	switch derr.Type {
	case discovery.ErrTypeIndexOutOfRange:
		status = http.StatusNotFound
	case discovery.ErrTypeNotInitialized:
		status = http.StatusServiceUnavailable
	case discovery.ErrTypeTimeout:
		status = http.StatusGatewayTimeout
	case discovery.ErrTypeProvider:
		status = http.StatusBadGateway
	}
	writeError(w, status, derr.Error(), derr.Type.String())
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusWriter wraps ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	w.wroteHeader = true
	return h.Hijack()
}

// Unwrap supports http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
