package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/skillpath-backend/internal/logger"
)

type WorkerMiddleware struct {
	log         *logger.Logger
	workerToken string
}

func NewWorkerMiddleware(log *logger.Logger, workerToken string) *WorkerMiddleware {
	return &WorkerMiddleware{
		log:         log.With("middleware", "WorkerMiddleware"),
		workerToken: workerToken,
	}
}

// RequireWorkerToken guards the internal settlement callbacks; only the
// generation worker holds the shared token.
func (wm *WorkerMiddleware) RequireWorkerToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("X-Worker-Token")
		if wm.workerToken == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(wm.workerToken)) != 1 {
			wm.log.Warn("Rejected worker callback with bad token", "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
