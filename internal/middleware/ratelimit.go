package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/interviewcoach/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralPerMinute int           // API全般の上限（req/min/user）
	AIPerMinute      int           // AI呼び出しを伴うAPIの上限（req/min/user）
	CleanupInterval  time.Duration // 使われなくなったリミッターの掃除間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralPerMinute: 120,
		AIPerMinute:      20,
		CleanupInterval:  5 * time.Minute,
	}
}

// userLimiter はユーザーごとのレートリミッターとアクセス時刻を保持する。
type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は1種類のレート制限についてユーザーごとのリミッターを管理する。
type limiterSet struct {
	name  string
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*userLimiter
}

func newLimiterSet(name string, perMinute int) *limiterSet {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &limiterSet{
		name:     name,
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
		limiters: make(map[string]*userLimiter),
	}
}

func (s *limiterSet) get(userID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	ul, ok := s.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[userID] = ul
	}
	ul.lastAccess = time.Now()
	return ul.limiter
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func (s *limiterSet) evict(olderThan time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, ul := range s.limiters {
		if ul.lastAccess.Before(olderThan) {
			delete(s.limiters, userID)
		}
	}
}

func (s *limiterSet) middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				writeUnauthorized(w)
				return
			}

			if !s.get(userID).Allow() {
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", s.name),
				)
				writeRateLimitResponse(w, s.limit)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter はユーザーごとのレート制限を管理する。
// API全般と、AI呼び出しを伴うAPI向けの2種類を独立に持つ。
type RateLimiter struct {
	config  RateLimiterConfig
	general *limiterSet
	ai      *limiterSet

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter はRateLimiterを生成し、使われなくなったリミッターの掃除を開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:  config,
		general: newLimiterSet("general", config.GeneralPerMinute),
		ai:      newLimiterSet("ai", config.AIPerMinute),
		stopCh:  make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop は掃除用のゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// セッション（またはゲスト）ミドルウェアの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.general.middleware()
}

// AIMiddleware は質問生成・回答分析・音声などAI呼び出しを伴うAPIのレート制限ミドルウェアを返す。
func (rl *RateLimiter) AIMiddleware() func(next http.Handler) http.Handler {
	return rl.ai.middleware()
}

// GeneralLimiterCount は管理中のAPI全般リミッター数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// AILimiterCount は管理中のAI向けリミッター数を返す。
func (rl *RateLimiter) AILimiterCount() int {
	return rl.ai.len()
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスから掃除間隔の2倍を超えたリミッターを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	olderThan := now.Add(-2 * rl.config.CleanupInterval)
	rl.general.evict(olderThan)
	rl.ai.evict(olderThan)
}

// writeRateLimitResponse は429レスポンスを書き込む。
// Retry-Afterにはトークン1個が補充されるまでの秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, limit rate.Limit) {
	retryAfter := int(math.Ceil(1.0 / float64(limit)))
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitExceededError())
}
