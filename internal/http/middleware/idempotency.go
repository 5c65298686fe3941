// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements Idempotency-Key support for checkout creation. The
// header is validated and stashed in the Gin context; when a lookup is
// supplied and a stored checkout already exists for (session, key), the
// request is marked as a replay so the rate limiter lets it through and the
// handler can answer from the stored record.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client's retry key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether a stored result already exists for this request.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures header validation. Expiry is the lookup's
// concern.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Routes lists the route patterns (gin FullPath) the header applies to.
	// On any other route the header is ignored. Empty means every route.
	Routes []string
}

// IdempotencyLookup reports whether a non-expired result exists for
// (sessionID, key) at now. Lookup errors never block the request.
type IdempotencyLookup func(ctx context.Context, sessionID, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header when present.
//
// Behavior:
//   - header absent: no-op
//   - header invalid: 400 bad_idempotency_key
//   - lookup hit: replay and rate-bypass flags are set
//
// The session is taken from the :id route parameter. Scope the validator
// with Routes: a replay also lifts the rate limit, so a key stored for a
// checkout must not unlock other /sessions/:id endpoints.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	routes := make(map[string]struct{}, len(opts.Routes))
	for _, rt := range opts.Routes {
		routes[rt] = struct{}{}
	}
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(routes) > 0 {
			if _, ok := routes[c.FullPath()]; !ok {
				c.Next()
				return
			}
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if sessionID := c.Param("id"); lookup != nil && sessionID != "" {
			if exists, _ := lookup(c.Request.Context(), sessionID, key, time.Now().UTC()); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}
