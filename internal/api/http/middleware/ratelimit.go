package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/weisyn/ctoken/client/core/fhevm"
)

// idleTTL 空闲超过该时长的桶被清理（空闲 1 秒以上的桶下次请求时本就会补满）
const idleTTL = time.Minute

// RateLimit 按客户端IP的令牌桶限流
// - GET（健康检查）使用 readLimit
// - POST（加密/解密）使用 writeLimit
type RateLimit struct {
	logger     *zap.Logger
	limiters   map[string]*rateLimiter
	mu         sync.Mutex
	readLimit  int
	writeLimit int
	now        func() time.Time
	lastSweep  time.Time
}

type rateLimiter struct {
	tokens     int
	maxTokens  int
	lastRefill time.Time
}

// NewRateLimit 创建限流中间件，limit <= 0 表示不限
func NewRateLimit(logger *zap.Logger, readLimit, writeLimit int) *RateLimit {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimit{
		logger:     logger,
		limiters:   make(map[string]*rateLimiter),
		readLimit:  readLimit,
		writeLimit: writeLimit,
		now:        time.Now,
	}
}

// Middleware 返回Gin中间件
func (m *RateLimit) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := m.readLimit
		kind := "read"
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			limit = m.writeLimit
			kind = "write"
		}
		if limit <= 0 {
			c.Next()
			return
		}

		clientID := c.ClientIP()
		if !m.allow(clientID+"/"+kind, limit) {
			m.logger.Warn("请求被限流",
				zap.String("client_ip", clientID),
				zap.String("path", c.Request.URL.Path),
				zap.Int("limit", limit))

			var body fhevm.ErrorBody
			body.Error.Code = fhevm.CodeRateLimited
			body.Error.Message = "rate limit of " + strconv.Itoa(limit) + " requests per second exceeded"
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, body)
			return
		}
		c.Next()
	}
}

func (m *RateLimit) allow(key string, limit int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastSweep) >= idleTTL {
		m.sweep(now)
	}
	l, ok := m.limiters[key]
	if !ok {
		l = &rateLimiter{tokens: limit, maxTokens: limit, lastRefill: now}
		m.limiters[key] = l
	}

	// 每满一秒补满一桶
	if elapsed := int(now.Sub(l.lastRefill) / time.Second); elapsed > 0 {
		l.tokens += elapsed * l.maxTokens
		if l.tokens > l.maxTokens {
			l.tokens = l.maxTokens
		}
		l.lastRefill = now
	}
	if l.tokens > 0 {
		l.tokens--
		return true
	}
	return false
}

// sweep 清理空闲的桶，调用方持有锁
func (m *RateLimit) sweep(now time.Time) {
	for key, l := range m.limiters {
		if now.Sub(l.lastRefill) >= idleTTL {
			delete(m.limiters, key)
		}
	}
	m.lastSweep = now
}
