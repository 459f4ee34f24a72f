package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mhttp "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/autopeca/marketplace/pkg/httpapi"
)

type RateLimitConfig struct {
	RequestsPerPeriod int
	Period            time.Duration
	Store             limiter.Store
	// Header carrying the client IP when running behind a proxy.
	RealIPHeader string
}

func NewMemoryStore() limiter.Store {
	return memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          "autopeca_ratelimit",
		CleanUpInterval: time.Minute,
	})
}

func NewRedisStore(redisURL string) (limiter.Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{Addr: redisURL}
	}
	store, err := sredis.NewStoreWithOptions(redis.NewClient(opts), limiter.StoreOptions{
		Prefix: "autopeca_ratelimit",
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit redis store: %w", err)
	}
	return store, nil
}

// RateLimit applies a global per-client limit. A non-positive rate disables it.
func RateLimit(cfg RateLimitConfig) mux.MiddlewareFunc {
	if cfg.RequestsPerPeriod <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.Period <= 0 {
		cfg.Period = time.Second
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}

	rate := limiter.Rate{Period: cfg.Period, Limit: int64(cfg.RequestsPerPeriod)}
	opts := []limiter.Option{}
	if cfg.RealIPHeader != "" {
		opts = append(opts, limiter.WithClientIPHeader(cfg.RealIPHeader))
	}
	instance := limiter.New(cfg.Store, rate, opts...)

	m := mhttp.NewMiddleware(instance,
		mhttp.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			_ = httpapi.WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
		}),
	)
	return m.Handler
}
