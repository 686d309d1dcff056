package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduling/internal/config"
	"github.com/jwalitptl/care-scheduling/pkg/auth"
	"github.com/jwalitptl/care-scheduling/pkg/errors"
	"github.com/jwalitptl/care-scheduling/pkg/httputil"
)

const (
	RoleDoctor  = auth.RoleDoctor
	RolePatient = auth.RolePatient
	RoleAdmin   = auth.RoleAdmin

	contextPrincipal = "principal"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Role   string
}

func (p *Principal) IsAdmin() bool { return p != nil && p.Role == RoleAdmin }

// Owns reports whether the caller is admin or is the user id.
func (p *Principal) Owns(id uuid.UUID) bool {
	return p.IsAdmin() || (p != nil && p.UserID == id)
}

type AuthMiddleware struct {
	tokens *auth.JWTService
}

func NewAuthMiddleware(cfg config.JWTConfig) *AuthMiddleware {
	return &AuthMiddleware{tokens: auth.NewJWTService(cfg.Secret, cfg.Issuer)}
}

// Authenticate verifies the bearer token and stores the principal.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, errors.Unauthorized(fmt.Errorf("missing authorization header")))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.RespondWithError(c, errors.Unauthorized(fmt.Errorf("invalid authorization format")))
			return
		}

		userID, claims, err := m.tokens.ValidateToken(parts[1])
		if err != nil {
			httputil.RespondWithError(c, errors.Unauthorized(err))
			return
		}

		c.Set(contextPrincipal, &Principal{UserID: userID, Role: claims.Role})
		c.Next()
	}
}

// RequireRoles rejects callers whose role is not listed.
func (m *AuthMiddleware) RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := CurrentPrincipal(c)
		if p == nil {
			httputil.RespondWithError(c, errors.Unauthorized(nil))
			return
		}
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, errors.Forbidden("permission denied"))
	}
}

// CurrentPrincipal returns nil outside authenticated routes.
func CurrentPrincipal(c *gin.Context) *Principal {
	v, ok := c.Get(contextPrincipal)
	if !ok {
		return nil
	}
	p, _ := v.(*Principal)
	return p
}
