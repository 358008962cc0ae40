package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/settlement/internal/observability/context"
)

// Actor is the caller identity asserted by the gateway headers.
type Actor struct {
	ID   string
	Role string
}

func (s *Server) authorizeAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromRequest(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor.ID, actor.Role, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func actorFromRequest(c *gin.Context) (Actor, bool) {
	role, id := obscontext.ActorFromContext(c.Request.Context())
	if strings.TrimSpace(id) == "" || strings.TrimSpace(role) == "" {
		return Actor{}, false
	}
	return Actor{ID: id, Role: role}, true
}

// actorName labels notes and audit fields; anonymous callers are "api".
func actorName(c *gin.Context) string {
	if actor, ok := actorFromRequest(c); ok {
		return actor.Role + ":" + actor.ID
	}
	return "api"
}
