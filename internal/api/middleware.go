package api

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/energizer-project/palrcon/internal/config"
)

// Context keys set by RequireAuth.
const (
	ctxActor = "actor"
	ctxToken = "token"
)

// tokenCacheTTL bounds how long a verified secret skips the bcrypt check.
const tokenCacheTTL = 20 * time.Minute

type cachedToken struct {
	token   config.APIToken
	expires time.Time
}

// AuthMiddleware verifies bearer tokens against the hashed tokens in the
// api config section and enforces their permission tier.
type AuthMiddleware struct {
	cfg   *config.Config
	cache cmap.ConcurrentMap[string, cachedToken]
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(cfg *config.Config) *AuthMiddleware {
	return &AuthMiddleware{
		cfg:   cfg,
		cache: cmap.New[cachedToken](),
	}
}

// RequireAuth rejects requests without a known token. When auth_disabled is
// set every request acts as a local admin.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiCfg := am.cfg.Snapshot().API
		if apiCfg.AuthDisabled {
			c.Set(ctxActor, "api:local")
			c.Next()
			return
		}

		secret := extractBearerToken(c.GetHeader("Authorization"))
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing or invalid authorization header",
			})
			return
		}

		token, ok := am.lookup(secret, apiCfg.Tokens)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token",
			})
			return
		}

		c.Set(ctxToken, token)
		c.Set(ctxActor, "api:"+token.Name)
		c.Next()
	}
}

func (am *AuthMiddleware) lookup(secret string, tokens []config.APIToken) (config.APIToken, bool) {
	sum := sha256.Sum256([]byte(secret))
	key := hex.EncodeToString(sum[:])

	if cached, ok := am.cache.Get(key); ok {
		if time.Now().Before(cached.expires) && stillConfigured(cached.token, tokens) {
			return cached.token, true
		}
		am.cache.Remove(key)
	}

	for _, t := range tokens {
		if t.Matches(secret) {
			am.cache.Set(key, cachedToken{token: t, expires: time.Now().Add(tokenCacheTTL)})
			return t, true
		}
	}
	return config.APIToken{}, false
}

// stillConfigured drops cache hits for tokens removed from the config.
func stillConfigured(token config.APIToken, tokens []config.APIToken) bool {
	for _, t := range tokens {
		if t.Hash == token.Hash {
			return true
		}
	}
	return false
}

// RequirePermission aborts with 403 unless the request's token grants
// permission.
func (am *AuthMiddleware) RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if am.cfg.Snapshot().API.AuthDisabled {
			c.Next()
			return
		}

		value, exists := c.Get(ctxToken)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}

		if token := value.(config.APIToken); !token.Grants(permission) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":    "insufficient permissions",
				"required": permission,
			})
			return
		}

		c.Next()
	}
}

// RateLimiter is a per-client-IP token bucket.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientBucket
	rate      int
	burst     int
	lastSweep time.Time
}

type clientBucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewRateLimiter creates a rate limiter allowing rps requests per second
// with bursts of twice that. rps <= 0 disables limiting.
func NewRateLimiter(rps int) *RateLimiter {
	return &RateLimiter{
		clients:   make(map[string]*clientBucket),
		rate:      rps,
		burst:     rps * 2,
		lastSweep: time.Now(),
	}
}

// Allow takes a token from key's bucket.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.rate <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.sweep(now)

	bucket, exists := rl.clients[key]
	if !exists {
		bucket = &clientBucket{tokens: float64(rl.burst), lastCheck: now}
		rl.clients[key] = bucket
	}

	bucket.tokens += now.Sub(bucket.lastCheck).Seconds() * float64(rl.rate)
	if bucket.tokens > float64(rl.burst) {
		bucket.tokens = float64(rl.burst)
	}
	bucket.lastCheck = now

	if bucket.tokens < 1 {
		return false
	}
	bucket.tokens--
	return true
}

// sweep forgets clients idle long enough to have a full bucket again.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < time.Minute {
		return
	}
	rl.lastSweep = now
	for ip, b := range rl.clients {
		if now.Sub(b.lastCheck) > time.Minute {
			delete(rl.clients, ip)
		}
	}
}

// Middleware returns a Gin middleware that rate limits by client IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// SecurityHeaders adds security-related HTTP headers.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Server", "palrcon")
		c.Next()
	}
}

// RequestLogger logs every request at debug level.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("actor", c.GetString(ctxActor)).
			Msg("api request")
	}
}

func extractBearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
