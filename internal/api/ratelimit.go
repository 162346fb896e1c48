package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Plan limits, requests per minute.
const (
	FreePlanLimit       = 100
	StandardPlanLimit   = 1000
	EnterprisePlanLimit = 10000
)

const RateWindow = time.Minute

type RateCounter interface {
	IncrementRateLimit(principal string, window time.Duration) (int64, time.Time, error)
}

type RateLimiter struct {
	kv     RateCounter
	logger logrus.FieldLogger
}

func NewRateLimiter(kv RateCounter, logger logrus.FieldLogger) *RateLimiter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RateLimiter{kv: kv, logger: logger}
}

// Middleware must run after authentication.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			writeError(w, http.StatusInternalServerError, "missing principal context")
			return
		}

		limit := LimitForPlan(p.Plan)
		count, reset, err := rl.kv.IncrementRateLimit(p.ID.String(), RateWindow)
		if err != nil {
			// fail open
			rl.logger.WithFields(logrus.Fields{
				"principal_id": p.ID.String(),
				"error":        err.Error(),
			}).Warn("rate limit counter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(0, int64(limit)-count), 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if count > int64(limit) {
			RateLimited.WithLabelValues(p.Plan).Inc()
			retry := time.Until(reset).Round(time.Second)
			if retry < time.Second {
				retry = time.Second
			}
			w.Header().Set("Retry-After", fmt.Sprint(int(retry.Seconds())))
			writeError(w, http.StatusTooManyRequests, ErrRateLimitExceeded.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func LimitForPlan(plan string) int {
	switch plan {
	case "standard":
		return StandardPlanLimit
	case "enterprise":
		return EnterprisePlanLimit
	default:
		return FreePlanLimit
	}
}
