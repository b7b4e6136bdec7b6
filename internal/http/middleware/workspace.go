package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meetingintel/server/internal/domain"
	"github.com/meetingintel/server/internal/workspace"
)

const workspaceKey = "workspaceContext"

// Workspace resolves the active workspace for an authenticated request. It
// must run after Auth.
type Workspace struct {
	Resolver *workspace.Resolver
}

// Resolve builds the request's workspace context and aborts on failure.
func (m *Workspace) Resolve(c *gin.Context) {
	principal, ok := GetPrincipal(c)
	if !ok {
		abortUnauthenticated(c, "A credential is required.")
		return
	}

	requested := c.GetHeader("X-Workspace")
	if requested == "" {
		requested = c.Query("workspace")
	}

	wctx, err := m.Resolver.Resolve(c.Request.Context(), principal, requested)
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   true,
				"code":    "UNAVAILABLE",
				"message": "Workspace resolution is temporarily unavailable.",
			})
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   true,
			"code":    "FORBIDDEN",
			"message": "No accessible workspace for this request.",
		})
		return
	}

	c.Set(workspaceKey, wctx)
	c.Request = c.Request.WithContext(workspace.WithContext(c.Request.Context(), wctx))
	c.Next()
}

// GetWorkspace exposes the resolved workspace context to handlers.
func GetWorkspace(c *gin.Context) (*workspace.Context, bool) {
	value, ok := c.Get(workspaceKey)
	if !ok {
		return nil, false
	}
	wctx, ok := value.(*workspace.Context)
	return wctx, ok && wctx != nil
}
