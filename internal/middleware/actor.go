package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/ebike-fleet/profile"
)

// Identity is resolved upstream; the gateway in front of the API forwards the
// authenticated user and role in these headers.
const (
	ActorIDHeader   = "X-Actor-ID"
	ActorRoleHeader = "X-Actor-Role"

	actorKey = "actor"
)

type Actor struct {
	UserID string
	Role   profile.Role
}

func (a Actor) Admin() bool { return a.Role == profile.RoleAdmin }

// Authenticate rejects requests without a known actor.
func Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := Actor{
			UserID: c.GetHeader(ActorIDHeader),
			Role:   profile.Role(c.GetHeader(ActorRoleHeader)),
		}
		if actor.UserID == "" || (actor.Role != profile.RoleAdmin && actor.Role != profile.RoleDriver) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireRole lets through only actors holding one of roles.
func RequireRole(roles ...profile.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "message": "Insufficient role"})
	}
}

func GetActor(c *gin.Context) (Actor, bool) {
	v, exists := c.Get(actorKey)
	if !exists {
		return Actor{}, false
	}
	actor, ok := v.(Actor)
	return actor, ok
}
