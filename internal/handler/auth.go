package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/waveledger/internal/network"
)

const ctxActor = "actor"

// RequireActor returns a Gin middleware that requires a Bearer actor token
// issued by net and injects the actor address into the context.
func RequireActor(net *network.Network) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		address, err := net.VerifyToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}

		c.Set(ctxActor, address)
		c.Next()
	}
}

// ActorFromCtx retrieves the actor address injected by RequireActor.
func ActorFromCtx(c *gin.Context) string {
	v, _ := c.Get(ctxActor)
	s, _ := v.(string)
	return s
}
