package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"kompetisi/internal/access"
	"kompetisi/internal/apperr"
)

const principalKey = "principal"

// Required enforces a bearer JWT signed with HS256 and stores the caller in
// the context.
func Required(signingKey, issuer string) gin.HandlerFunc {
	return authenticate(signingKey, issuer, false)
}

// Optional authenticates the caller when an Authorization header is present
// and lets anonymous requests through. A header carrying a bad token is still
// rejected.
func Optional(signingKey, issuer string) gin.HandlerFunc {
	return authenticate(signingKey, issuer, true)
}

func authenticate(signingKey, issuer string, anonymousOK bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" && anonymousOK {
			c.Next()
			return
		}
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			unauthorized(c, "token akses wajib disertakan")
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			unauthorized(c, "token akses tidak valid")
			return
		}
		p, ok := claims.Principal()
		if !ok {
			unauthorized(c, "token akses tidak valid")
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// unauthorized answers 401 with the same {error, code} body as every other
// failure. 401 means "who are you", 403 means "not allowed".
func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": msg,
		"code":  apperr.KindAuthorization,
	})
}

// RequireCapability is the boundary capability check. It must run after
// Required or Optional.
func RequireCapability(capability access.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !PrincipalFrom(c).Can(capability) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "akses ditolak",
				"code":  apperr.KindAuthorization,
			})
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns the authenticated caller, or nil for anonymous
// requests.
func PrincipalFrom(c *gin.Context) *access.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*access.Principal)
	return p
}
