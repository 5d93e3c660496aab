package http

import (
	"strings"

	"github.com/gin-gonic/gin"

	keyvault "github.com/layer-3/keyvault"
	"github.com/layer-3/keyvault/core"
)

const (
	headerAPIKey = "X-API-Key"
	principalKey = "principal"
)

// AuthMiddleware accepts an API key in X-API-Key or a session token as a
// bearer token. The API key wins when both are present.
func AuthMiddleware(client keyvault.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var (
			principal *core.Principal
			err       error
		)
		if apiKey := c.GetHeader(headerAPIKey); apiKey != "" {
			principal, err = client.VerifyAPIKey(ctx, apiKey)
		} else if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
			principal, err = client.VerifySession(ctx, token)
		} else {
			err = core.Unauthenticated("missing API key")
		}
		if err != nil {
			respondError(c, err)
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequirePermission rejects principals that lack perm
func RequirePermission(perm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFrom(c)
		if !ok {
			respondError(c, core.Unauthenticated("missing API key"))
			return
		}
		if !principal.Can(perm) {
			respondError(c, core.Forbidden("API key lacks permission "+perm))
			return
		}
		c.Next()
	}
}

func principalFrom(c *gin.Context) (*core.Principal, bool) {
	v, exists := c.Get(principalKey)
	if !exists {
		return nil, false
	}
	p, ok := v.(*core.Principal)
	return p, ok
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
