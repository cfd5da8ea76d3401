package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/anon-community/pkg/logger"
	"github.com/d60-Lab/anon-community/pkg/response"
)

// Sentry 为每个请求克隆 hub 并挂到 request context 上，
// response.InternalError 和 Recovery 都从这里取 hub
func Sentry() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetRequest(c.Request)
		hub.Scope().SetTag("request_id", c.GetString(KeyRequestID))
		ctx := sentry.SetHubOnContext(c.Request.Context(), hub)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Recovery 捕获 panic，上报 Sentry 后返回 500
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if hub := sentry.GetHubFromContext(c.Request.Context()); hub != nil {
				hub.RecoverWithContext(c.Request.Context(), rec)
			}
			logger.Error("panic recovered",
				zap.Any("panic", rec),
				zap.String("route", c.FullPath()),
				zap.String("request_id", c.GetString(KeyRequestID)),
				zap.ByteString("stack", debug.Stack()),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
				Code:    http.StatusInternalServerError,
				Message: fmt.Sprintf("internal server error (request %s)", c.GetString(KeyRequestID)),
			})
		}()
		c.Next()
	}
}
