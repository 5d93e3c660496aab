package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/layer-3/keyvault/core"
)

func TestRequirePermission(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newEngine := func(principal *core.Principal) *gin.Engine {
		r := gin.New()
		r.GET("/", func(c *gin.Context) {
			if principal != nil {
				c.Set(principalKey, principal)
			}
		}, RequirePermission(core.PermWalletSign), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
		return r
	}

	tests := []struct {
		name      string
		principal *core.Principal
		want      int
	}{
		{"no principal", nil, http.StatusUnauthorized},
		{"lacks permission", &core.Principal{Permissions: []string{core.PermWalletRead}}, http.StatusForbidden},
		{"granted", &core.Principal{Permissions: []string{core.PermWalletSign}}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			newEngine(tt.principal).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRespondError_HidesInternalDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err  error
		want int
	}{
		{core.BadRequest("x"), http.StatusBadRequest},
		{core.Unauthenticated("x"), http.StatusUnauthorized},
		{core.Forbidden("x"), http.StatusForbidden},
		{core.NotFound("x"), http.StatusNotFound},
		{core.Conflict("x"), http.StatusConflict},
		{errors.New("db password is hunter2"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		respondError(c, tt.err)
		assert.Equal(t, tt.want, w.Code)
		assert.NotContains(t, w.Body.String(), "hunter2")
	}
}

func TestCredentialPrefix(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"api key", map[string]string{headerAPIKey: "sk_live_0123456789abcdef"}, "sk_live_0123..."},
		{"short key", map[string]string{headerAPIKey: "short"}, "invalid"},
		{"session", map[string]string{"Authorization": "Bearer abc"}, "session"},
		{"anonymous", nil, "N/A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = req
			assert.Equal(t, tt.want, credentialPrefix(c))
		})
	}
}
