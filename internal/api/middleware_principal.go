package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smilemakc/workflowrt/internal/models"
)

const contextKeyPrincipal = "principal"

// Principal reads the bearer token off the Authorization header and stamps
// an opaque models.Principal onto the request context. The runtime itself
// never issues or verifies tokens; whatever value follows "Bearer "
// becomes the principal's ID, unparsed.
func Principal() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		id := "anonymous"
		if strings.HasPrefix(header, "Bearer ") {
			if tok := strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")); tok != "" {
				id = tok
			}
		}
		c.Set(contextKeyPrincipal, models.Principal{ID: id})
		c.Next()
	}
}

// GetPrincipal reads the principal stamped by Principal(). Handlers that
// run without the middleware (tests) get the anonymous principal, whose ID
// is "anonymous".
func GetPrincipal(c *gin.Context) models.Principal {
	v, ok := c.Get(contextKeyPrincipal)
	if !ok {
		return models.Principal{ID: "anonymous"}
	}
	p, ok := v.(models.Principal)
	if !ok {
		return models.Principal{ID: "anonymous"}
	}
	return p
}
