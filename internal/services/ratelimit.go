package services

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/qlozet/stylefeed/internal/config"
	"github.com/qlozet/stylefeed/pkg/models"
)

const rateLimitRedisTimeout = 2 * time.Second

// RateLimitService counts requests per caller in a sliding window kept in a
// Redis sorted set. Rejected requests are not recorded, so a caller that
// backs off regains capacity as old entries age out. Without Redis, or when
// Redis fails, an in-process token bucket per caller takes over.
type RateLimitService struct {
	limits map[string]int
	window time.Duration
	redis  *redis.Client
	logger *logrus.Logger
	now    func() time.Time

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

func NewRateLimitService(cfg config.RateLimitConfig, logger *logrus.Logger, redisClient *redis.Client) *RateLimitService {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimitService{
		limits: map[string]int{
			"default": cfg.Default,
			"premium": cfg.Premium,
			"partner": cfg.Premium * 10,
		},
		window: window,
		redis:  redisClient,
		logger: logger,
		now:    time.Now,
		local:  make(map[string]*rate.Limiter),
	}
}

// Limit returns the request budget per window for a tier. Unknown tiers get
// the default budget.
func (s *RateLimitService) Limit(tier string) int {
	if limit, ok := s.limits[tier]; ok {
		return limit
	}
	return s.limits["default"]
}

// IsAllowed records the request if the caller still has budget.
func (s *RateLimitService) IsAllowed(ctx context.Context, callerID, userTier string) (bool, *models.RateLimitInfo, error) {
	limit := s.Limit(userTier)
	now := s.now()
	info := &models.RateLimitInfo{Limit: limit, ResetTime: now.Add(s.window).Unix()}

	if s.redis != nil {
		used, err := s.slidingWindow(ctx, callerID, limit, now)
		if err == nil {
			info.Remaining = max(limit-used, 0)
			return used < limit, info, nil
		}
		s.logger.WithError(err).WithField("caller_id", callerID).Warn("Rate limit store unavailable, using local limiter")
	}

	limiter := s.localLimiter(callerID, userTier, limit)
	allowed := limiter.AllowN(now, 1)
	info.Remaining = max(int(limiter.TokensAt(now)), 0)
	return allowed, info, nil
}

// slidingWindow returns the number of requests counted for the caller,
// including this one when it was admitted.
func (s *RateLimitService) slidingWindow(ctx context.Context, callerID string, limit int, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, rateLimitRedisTimeout)
	defer cancel()

	key := "rate_limit:caller:" + callerID
	cutoff := strconv.FormatInt(now.Add(-s.window).UnixNano(), 10)

	pipe := s.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
	count := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	used := int(count.Val())
	if used >= limit {
		return used, nil
	}

	stamp := now.UnixNano()
	pipe = s.redis.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(stamp), Member: strconv.FormatInt(stamp, 10) + ":" + callerID})
	pipe.Expire(ctx, key, s.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return used + 1, nil
}

func (s *RateLimitService) localLimiter(callerID, tier string, limit int) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tier + "|" + callerID
	limiter, ok := s.local[key]
	if !ok {
		var every rate.Limit
		if limit > 0 {
			every = rate.Every(s.window / time.Duration(limit))
		}
		limiter = rate.NewLimiter(every, max(limit, 0))
		s.local[key] = limiter
	}
	return limiter
}
