package api

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/landforge/server/internal/auth"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

const rateLimitExceededJSON = `{"error":"Rate limit exceeded","message":"Too many requests. Please try again later.","retry_after":%d}`

// RateLimitMiddleware limits requests per client IP. Used on the anonymous
// auth endpoints where brute-force protection matters most.
func RateLimitMiddleware(limit int, window time.Duration) func(http.Handler) http.Handler {
	instance := limiter.New(memory.NewStore(), limiter.Rate{
		Period: window,
		Limit:  int64(limit),
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			applyLimit(instance, getClientIP(r), w, r, next)
		})
	}
}

// UserRateLimitMiddleware limits requests per authenticated user, falling
// back to the client IP when no user is on the request context.
func UserRateLimitMiddleware(limit int, window time.Duration) func(http.Handler) http.Handler {
	instance := limiter.New(memory.NewStore(), limiter.Rate{
		Period: window,
		Limit:  int64(limit),
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := getClientIP(r)
			if userID, ok := auth.GetUserID(r); ok {
				key = fmt.Sprintf("user:%d", userID)
			}
			applyLimit(instance, key, w, r, next)
		})
	}
}

// applyLimit checks one key against the limiter, sets the X-RateLimit-*
// headers, and either rejects with 429 or passes the request through. A
// limiter failure lets the request through rather than breaking the service.
func applyLimit(instance *limiter.Limiter, key string, w http.ResponseWriter, r *http.Request, next http.Handler) {
	context, err := instance.Get(r.Context(), key)
	if err != nil {
		log.Printf("Rate limiter error: %v", err)
		next.ServeHTTP(w, r)
		return
	}

	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(context.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(context.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(context.Reset, 10))

	if context.Reached {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)

		retryAfter := int(time.Until(time.Unix(context.Reset, 0)).Seconds())
		if retryAfter < 0 {
			retryAfter = 0
		}
		if _, err := fmt.Fprintf(w, rateLimitExceededJSON, retryAfter); err != nil {
			log.Printf("Error writing rate limit response: %v", err)
		}
		return
	}

	next.ServeHTTP(w, r)
}

// getClientIP extracts the client IP address from the request, honoring the
// usual proxy headers.
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	ip := r.RemoteAddr
	for i := len(ip) - 1; i >= 0; i-- {
		if ip[i] == ':' {
			return ip[:i]
		}
	}
	return ip
}
