package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	logging "github.com/ipfs/go-log/v2"

	"github.com/layer-3/keyvault/core"
)

var log = logging.Logger("keyvault/http")

// statusFor maps an error kind to its HTTP status
func statusFor(kind core.Kind) int {
	switch kind {
	case core.KindBadRequest:
		return http.StatusBadRequest
	case core.KindUnauthenticated:
		return http.StatusUnauthorized
	case core.KindForbidden:
		return http.StatusForbidden
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the public message of err and logs what callers must not see
func respondError(c *gin.Context, err error) {
	kind := core.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		detail := ""
		var e *core.Error
		if errors.As(err, &e) {
			detail = e.Detail
		}
		log.Errorf("%s %s: %v %s", c.Request.Method, c.FullPath(), err, detail)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": core.PublicMessage(err)})
}
