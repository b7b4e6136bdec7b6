package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/meetingintel/server/internal/auth"
	"github.com/meetingintel/server/internal/domain"
	"github.com/meetingintel/server/internal/oauth"
	"github.com/meetingintel/server/internal/repository"
)

const principalKey = "principal"

// Auth authenticates every request on the protected surfaces. It accepts
// opaque client tokens and OAuth access JWTs through the same middleware;
// which validator runs is decided by the token's shape.
type Auth struct {
	Validator  *auth.Validator
	OAuth      *oauth.Server
	Principals repository.PrincipalRepository
	Logger     *zap.Logger
}

// Authenticate resolves the request's credential to a principal or aborts.
func (m *Auth) Authenticate(c *gin.Context) {
	token := ExtractToken(c)
	if token == "" {
		abortUnauthenticated(c, "A credential is required.")
		return
	}

	principal, err := m.resolvePrincipal(c, token)
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   true,
				"code":    "UNAVAILABLE",
				"message": "Authentication is temporarily unavailable.",
			})
			return
		}
		abortUnauthenticated(c, "The supplied credential is not valid.")
		return
	}

	c.Set(principalKey, principal)
	c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), principal))
	c.Next()
}

func (m *Auth) resolvePrincipal(c *gin.Context, token string) (domain.Principal, error) {
	// An access JWT has two dots; opaque client tokens never do.
	if strings.Count(token, ".") == 2 {
		_, claims, err := m.OAuth.ValidateAccess(token)
		if err != nil {
			return domain.Principal{}, err
		}
		principal, err := m.Principals.GetByEmail(c.Request.Context(), claims.Email)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.Principal{}, domain.ErrUnauthenticated
			}
			m.log().Error("principal lookup failed", zap.Error(err))
			return domain.Principal{}, domain.ErrUnavailable
		}
		return principal, nil
	}
	return m.Validator.Validate(c.Request.Context(), token)
}

// ExtractToken pulls the credential from the Authorization header, the
// X-API-Key header, a token query parameter, or a token path parameter, in
// that order.
func ExtractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if token := c.Query("token"); token != "" {
		return token
	}
	return c.Param("token")
}

// GetPrincipal exposes the authenticated principal to handlers.
func GetPrincipal(c *gin.Context) (domain.Principal, bool) {
	value, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}, false
	}
	principal, ok := value.(domain.Principal)
	return principal, ok
}

func abortUnauthenticated(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", `Bearer resource_metadata="`+metadataURL(c)+`"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   true,
		"code":    "UNAUTHENTICATED",
		"message": message,
	})
}

func metadataURL(c *gin.Context) string {
	scheme := c.GetHeader("X-Forwarded-Proto")
	if scheme == "" {
		if c.Request.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	return scheme + "://" + c.Request.Host + "/.well-known/oauth-protected-resource"
}

func (m *Auth) log() *zap.Logger {
	if m != nil && m.Logger != nil {
		return m.Logger
	}
	return zap.L()
}
