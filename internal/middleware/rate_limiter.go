package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"sourcedpos/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// rateEntry tracks request counts per client within a fixed window.
type rateEntry struct {
	count     int
	windowEnd time.Time
	mu        sync.Mutex
}

// RateLimiter is an in-process fixed-window limiter keyed by staff ID when
// the request is authenticated, by client IP otherwise. Each call returns an
// independent limiter; its cleanup goroutine stops when ctx is done.
func RateLimiter(ctx context.Context, limit int, window time.Duration) gin.HandlerFunc {
	var (
		entries = make(map[string]*rateEntry)
		mu      sync.Mutex
	)
	interval := 5 * window
	if interval < time.Minute {
		interval = time.Minute
	}
	go purgeExpired(ctx, &mu, entries, interval)

	return func(c *gin.Context) {
		key := c.ClientIP()
		if claims := GetClaims(c); claims != nil {
			key = "staff:" + claims.StaffID
		}

		mu.Lock()
		entry, exists := entries[key]
		if !exists {
			entry = &rateEntry{}
			entries[key] = entry
		}
		mu.Unlock()

		entry.mu.Lock()
		defer entry.mu.Unlock()

		now := time.Now()
		if now.After(entry.windowEnd) {
			entry.count = 0
			entry.windowEnd = now.Add(window)
		}

		entry.count++
		if entry.count > limit {
			c.Header("Retry-After", entry.windowEnd.Format(time.RFC1123))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.New("Too many requests, try again shortly"))
			return
		}
		c.Next()
	}
}

// purgeExpired drops idle entries every interval until ctx is done.
func purgeExpired(ctx context.Context, mu *sync.Mutex, entries map[string]*rateEntry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		now := time.Now()
		mu.Lock()
		purged := 0
		for key, entry := range entries {
			entry.mu.Lock()
			if now.After(entry.windowEnd) {
				delete(entries, key)
				purged++
			}
			entry.mu.Unlock()
		}
		remaining := len(entries)
		mu.Unlock()

		if purged > 0 {
			log.Debug().Int("purged", purged).Int("remaining", remaining).Msg("rate limiter entries purged")
		}
	}
}
