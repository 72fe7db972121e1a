package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

type requestIDContextKey struct{}

// RequestIDFromContext returns the id assigned by the request-id middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// loggingResponseWriter captures status and size for the access log.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// requestID keeps a caller supplied X-Request-ID that parses as an xid and
// otherwise assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := xid.FromString(id); err != nil {
			id = xid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDContextKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accessLog(logger *zap.Logger, trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("http request",
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote", ClientIP(r, trusted)),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
				zap.Int("size", lrw.size),
			)
		})
	}
}

func recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic serving request",
						zap.String("request_id", RequestIDFromContext(r.Context())),
						zap.Any("panic", rec),
						zap.Stack("stack"),
					)
					writeJSON(w, http.StatusInternalServerError, envelope{Message: "internal error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// clientInfo hands the caller's address and user agent to the Engine.
func clientInfo(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := authgate.WithClientIP(r.Context(), ClientIP(r, trusted))
			ctx = authgate.WithUserAgent(ctx, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ParseTrustedProxies reads proxy addresses given as single IPs or CIDR
// ranges.
func ParseTrustedProxies(specs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(specs))
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		if strings.Contains(spec, "/") {
			p, err := netip.ParsePrefix(spec)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", spec, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(spec)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", spec, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func isTrusted(trusted []netip.Prefix, ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP resolves the caller. Forwarding headers are honored only when
// the connection comes from a trusted proxy: X-Forwarded-For is walked from
// the right, skipping trusted hops, then X-Real-IP is consulted. Any other
// peer is identified by its remote address alone.
func ClientIP(r *http.Request, trusted []netip.Prefix) string {
	remote, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remote = r.RemoteAddr
	}
	if !isTrusted(trusted, remote) {
		return remote
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !isTrusted(trusted, hop) {
				return hop
			}
			remote = hop
		}
		return remote
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return remote
}
