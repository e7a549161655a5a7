package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/princeprakhar/movie-watchlist/internal/metrics"
	"github.com/princeprakhar/movie-watchlist/internal/utils"
	"github.com/princeprakhar/movie-watchlist/pkg/logger"
)

// Throttle scopes.
const (
	ScopeReviewCreate = "review-create"
	ScopeReviewList   = "review-list"
	ScopeReviewDetail = "review-detail"
	scopeGlobal       = "global"
)

// RateLimitMiddleware caps each client at rps requests per second and path,
// counted in process memory.
func RateLimitMiddleware(rps int) gin.HandlerFunc {
	rate := limiter.Rate{
		Period: time.Second,
		Limit:  int64(rps),
	}

	store := memory.NewStore()
	instance := limiter.New(store, rate)

	return mgin.NewMiddleware(instance,
		mgin.WithKeyGetter(func(c *gin.Context) string {
			return fmt.Sprintf("%s:%s", c.ClientIP(), c.Request.URL.Path)
		}),
		mgin.WithLimitReachedHandler(limitReached(scopeGlobal, time.Now)),
		mgin.WithErrorHandler(limiterError(scopeGlobal)),
	)
}

// Throttle enforces a named per-caller budget. Authenticated callers are
// counted by user id, anonymous ones by client IP. now must be the clock the
// store uses so the reported wait is exact.
func Throttle(scope string, rate limiter.Rate, store limiter.Store, now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	instance := limiter.New(store, rate)

	return mgin.NewMiddleware(instance,
		mgin.WithKeyGetter(func(c *gin.Context) string {
			return ThrottleKey(scope, c)
		}),
		mgin.WithLimitReachedHandler(limitReached(scope, now)),
		mgin.WithErrorHandler(limiterError(scope)),
	)
}

// ThrottleKey identifies the caller within scope.
func ThrottleKey(scope string, c *gin.Context) string {
	if identity := CurrentIdentity(c); identity != nil {
		return fmt.Sprintf("%s:user:%d", scope, identity.UserID)
	}
	return fmt.Sprintf("%s:ip:%s", scope, c.ClientIP())
}

// limitReached answers 429 with the seconds left until the window resets,
// read from the header the limiter middleware has just set.
func limitReached(scope string, now func() time.Time) func(c *gin.Context) {
	return func(c *gin.Context) {
		wait := int64(1)
		if reset, err := strconv.ParseInt(c.Writer.Header().Get("X-RateLimit-Reset"), 10, 64); err == nil {
			if w := reset - now().Unix(); w > 0 {
				wait = w
			}
		}

		metrics.ThrottledRequests.WithLabelValues(scope).Inc()
		logger.WithFields(map[string]interface{}{
			"scope": scope,
			"path":  c.Request.URL.Path,
			"wait":  wait,
		}).Debug("Request throttled")
		utils.SendThrottled(c, wait)
	}
}

func limiterError(scope string) func(c *gin.Context, err error) {
	return func(c *gin.Context, err error) {
		logger.WithError(err).WithField("scope", scope).Error("Rate limiter store failed")
		utils.SendInternalError(c)
	}
}
