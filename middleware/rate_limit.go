package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"checkout-3ds-api/models"
)

type RateLimiter struct {
	client *redis.Client
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Message  string
}

var defaultConfigs = map[string]RateLimitConfig{
	"/api/3ds/verify": {
		Requests: 10,
		Window:   time.Minute,
		Message:  "Too many verification attempts. Please wait a minute and try again.",
	},
	"/api/3ds/config": {
		Requests: 60,
		Window:   time.Minute,
		Message:  "Too many configuration requests. Please slow down your requests.",
	},
	"default": {
		Requests: 60,
		Window:   time.Minute,
		Message:  "Rate limit exceeded. Please slow down your requests.",
	},
}

// rateLimitScript counts requests in a sorted set per window. It returns
// {allowed, remaining}.
var rateLimitScript = redis.NewScript(`
	local key = KEYS[1]
	local window_start = tonumber(ARGV[1])
	local limit = tonumber(ARGV[2])
	local current_time = ARGV[3]
	local member = ARGV[4]
	local ttl = tonumber(ARGV[5])

	redis.call('ZREMRANGEBYSCORE', key, 0, window_start - 1)

	local current_count = redis.call('ZCARD', key)

	if current_count < limit then
		redis.call('ZADD', key, current_time, member)
		redis.call('EXPIRE', key, ttl)
		return {1, limit - current_count - 1}
	end
	return {0, 0}
`)

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// RateLimitMiddleware limits requests per client IP and endpoint. A Redis
// failure lets the request through.
func (rl *RateLimiter) RateLimitMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			config := getConfigForEndpoint(r.URL.Path)
			key := getRateLimitKey(r)

			allowed, remaining, resetTime, err := rl.checkRateLimit(r.Context(), key, config)
			if err != nil {
				log.Printf("Rate limit check error: %v", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.Requests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			if !allowed {
				log.Printf("Rate limit exceeded for key: %s, endpoint: %s", key, r.URL.Path)

				retryAfter := int64(time.Until(resetTime).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(models.APIResponse{
					Status:  "error",
					Message: config.Message,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func getConfigForEndpoint(path string) RateLimitConfig {
	if config, exists := defaultConfigs[path]; exists {
		return config
	}

	if strings.HasPrefix(path, "/api/3ds/attempts/") && strings.HasSuffix(path, "/challenge") {
		return RateLimitConfig{
			Requests: 20,
			Window:   time.Minute * 5,
			Message:  "Too many challenge submissions. Please wait 5 minutes.",
		}
	}

	if strings.HasPrefix(path, "/api/3ds/attempts/") {
		return RateLimitConfig{
			Requests: 120,
			Window:   time.Minute,
			Message:  "Too many status requests. Please slow down your requests.",
		}
	}

	if strings.HasPrefix(path, "/internal/") {
		return RateLimitConfig{
			Requests: 200,
			Window:   time.Minute,
			Message:  "Internal API rate limit exceeded.",
		}
	}

	return defaultConfigs["default"]
}

// getRateLimitKey buckets attempt routes together so attempt ids do not
// create a key per attempt.
func getRateLimitKey(r *http.Request) string {
	ip := ClientIP(r)
	endpoint := r.URL.Path

	if strings.HasPrefix(endpoint, "/api/3ds/attempts/") {
		if strings.HasSuffix(endpoint, "/challenge") {
			return fmt.Sprintf("rate_limit:challenge:%s", ip)
		}
		return fmt.Sprintf("rate_limit:attempts:%s", ip)
	}

	if strings.HasPrefix(endpoint, "/internal/") {
		return fmt.Sprintf("rate_limit:internal:%s", ip)
	}

	return fmt.Sprintf("rate_limit:default:%s:%s", ip, endpoint)
}

func (rl *RateLimiter) checkRateLimit(ctx context.Context, key string, config RateLimitConfig) (allowed bool, remaining int, resetTime time.Time, err error) {
	now := time.Now()
	windowStart := now.Truncate(config.Window)
	windowEnd := windowStart.Add(config.Window)

	// members must be unique or two requests in the same second count once
	member := strconv.FormatInt(now.UnixNano(), 10)
	ttl := int64(config.Window.Seconds()) + 1

	result, err := rateLimitScript.Run(ctx, rl.client, []string{key},
		windowStart.Unix(), config.Requests, now.Unix(), member, ttl).Result()
	if err != nil {
		return false, 0, time.Time{}, err
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) != 2 {
		return false, 0, time.Time{}, fmt.Errorf("unexpected redis result format")
	}

	allowedInt, ok1 := resultSlice[0].(int64)
	remainingInt, ok2 := resultSlice[1].(int64)
	if !ok1 || !ok2 {
		return false, 0, time.Time{}, fmt.Errorf("failed to parse redis result")
	}

	return allowedInt == 1, int(remainingInt), windowEnd, nil
}

// IPWhitelistMiddleware only lets the listed client IPs through.
func IPWhitelistMiddleware(allowedIPs []string) func(http.Handler) http.Handler {
	ipMap := make(map[string]bool)
	for _, ip := range allowedIPs {
		ipMap[ip] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := ClientIP(r)

			if !ipMap[clientIP] {
				log.Printf("Access denied for IP: %s, endpoint: %s", clientIP, r.URL.Path)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(models.APIResponse{
					Status:  "error",
					Message: "Access denied from your IP address",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeadersMiddleware adds the security headers every response carries.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")

		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
			w.Header().Set("Pragma", "no-cache")
			w.Header().Set("Expires", "0")
		}

		next.ServeHTTP(w, r)
	})
}
