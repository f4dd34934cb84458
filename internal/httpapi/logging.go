package httpapi

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"
)

type RequestObserver interface {
	ObserveRequest(method string, status int, duration time.Duration)
}

type requestInfoKey struct{}

// requestInfo is filled in by inner middleware so the access log can see it.
type requestInfo struct {
	userID string
}

func requestInfoFromContext(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return info
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush and Hijack keep the SockJS streaming and websocket transports
// working behind the wrapper.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func LoggingMiddleware(observer RequestObserver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		info := &requestInfo{}
		writer := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(writer, r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)))
		duration := time.Since(start)
		if observer != nil {
			observer.ObserveRequest(r.Method, writer.status, duration)
		}
		log.Printf("request method=%s path=%s status=%d duration_ms=%d user=%s request_id=%s",
			r.Method, r.URL.Path, writer.status, duration.Milliseconds(), info.userID, requestIDFromRequest(r))
	})
}
