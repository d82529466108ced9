package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusworks/dept-admin-api/internal/models"
)

type activityRecorder interface {
	Record(ctx context.Context, activity *models.Activity) error
}

// Audit records an activity entry after a successful request. Failed
// requests leave no trace; mutation services write their own entries
// with richer context.
func Audit(recorder activityRecorder, action, subjectType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		var userID *string
		if actor := actorFrom(c); actor != nil {
			userID = &actor.ID
		}

		properties, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		_ = recorder.Record(c.Request.Context(), &models.Activity{
			UserID:      userID,
			Action:      action,
			SubjectType: subjectType,
			Properties:  properties,
			IPAddress:   c.ClientIP(),
			UserAgent:   c.GetHeader("User-Agent"),
		})
	}
}
