package server

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/juju/ratelimit"

	"github.com/giygas/prescriptions-web/config"
	"github.com/giygas/prescriptions-web/handlers"
	"github.com/giygas/prescriptions-web/interfaces"
	"github.com/giygas/prescriptions-web/logging"
	"github.com/giygas/prescriptions-web/metrics"
)

// RealIPMiddleware sets RemoteAddr to the client IP: the first X-Forwarded-For
// entry, then X-Real-IP, then the connection address without its port.
func RealIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.Index(xff, ","); idx != -1 {
				xff = xff[:idx]
			}
			r.RemoteAddr = strings.TrimSpace(xff)
		} else if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			r.RemoteAddr = xri
		} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			r.RemoteAddr = host
		}
		next.ServeHTTP(w, r)
	})
}

// RequestSizeMiddleware limits the size of request headers and body
func RequestSizeMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > cfg.MaxRequestBody {
				logging.Warn("Request body too large",
					"content_length", r.ContentLength,
					"max_allowed", cfg.MaxRequestBody,
					"remote_addr", r.RemoteAddr)

				handlers.RespondWithJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
					"error": fmt.Sprintf("Request body too large. Maximum allowed size is %d bytes", cfg.MaxRequestBody),
				})
				return
			}

			// Rough estimate
			headerSize := int64(0)
			for key, values := range r.Header {
				headerSize += int64(len(key))
				for _, value := range values {
					headerSize += int64(len(value))
				}
			}

			if headerSize > cfg.MaxHeaderSize {
				logging.Warn("Request headers too large",
					"header_size", headerSize,
					"max_allowed", cfg.MaxHeaderSize,
					"remote_addr", r.RemoteAddr)

				handlers.RespondWithJSON(w, http.StatusRequestHeaderFieldsTooLarge, map[string]string{
					"error": fmt.Sprintf("Request headers too large. Maximum allowed size is %d bytes", cfg.MaxHeaderSize),
				})
				return
			}

			// Chunked bodies carry no Content-Length
			r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxRequestBody)
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter manages per-client token buckets
type RateLimiter struct {
	clients  map[string]*ratelimit.Bucket
	mu       sync.RWMutex
	rate     int64
	capacity int64
}

var _ interfaces.Sweeper = (*RateLimiter)(nil)

// NewRateLimiter refills rate tokens per second up to capacity
func NewRateLimiter(rate, capacity int64) *RateLimiter {
	return &RateLimiter{
		clients:  make(map[string]*ratelimit.Bucket),
		rate:     rate,
		capacity: capacity,
	}
}

func (rl *RateLimiter) getBucket(clientIP string) *ratelimit.Bucket {
	rl.mu.RLock()
	bucket, exists := rl.clients[clientIP]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		if bucket, exists = rl.clients[clientIP]; !exists {
			bucket = ratelimit.NewBucketWithRate(float64(rl.rate), rl.capacity)
			rl.clients[clientIP] = bucket
		}
		n := len(rl.clients)
		rl.mu.Unlock()
		metrics.RateLimiterBucketsTotal.Set(float64(n))
	}

	return bucket
}

// Sweep drops full buckets, which belong to clients idle long enough to refill
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	for ip, bucket := range rl.clients {
		if bucket.Available() == bucket.Capacity() {
			delete(rl.clients, ip)
		}
	}
	n := len(rl.clients)
	rl.mu.Unlock()

	metrics.RateLimiterBucketsTotal.Set(float64(n))
	return n
}

// getTokenCost prices a request by the upstream calls it triggers
func getTokenCost(r *http.Request) int64 {
	path := r.URL.Path

	switch {
	case path == "/health", path == "/metrics", strings.HasPrefix(path, "/static/"):
		return 0
	case path == "/":
		return 1
	case path == "/prescriptions":
		// patients, medications and prescriptions
		return 3
	case path == "/prescriptions/new":
		if r.Method == http.MethodPost {
			return 5
		}
		return 2
	case strings.HasPrefix(path, "/prescriptions/") && strings.HasSuffix(path, "/delete"):
		if r.Method == http.MethodPost {
			return 5
		}
		return 3
	}

	return 1
}

// Middleware rejects requests once the client has spent its tokens
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	limit := strconv.FormatInt(rl.capacity, 10)
	rate := strconv.FormatInt(rl.rate, 10)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCost := getTokenCost(r)
		if tokenCost == 0 {
			next.ServeHTTP(w, r)
			return
		}

		bucket := rl.getBucket(r.RemoteAddr)

		w.Header().Set("X-RateLimit-Limit", limit)
		w.Header().Set("X-RateLimit-Rate", rate)

		if bucket.TakeAvailable(tokenCost) < tokenCost {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", "1")
			logging.Warn("Rate limit exceeded", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(bucket.Available(), 10))
		next.ServeHTTP(w, r)
	})
}
