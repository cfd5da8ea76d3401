package response

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/anon-community/pkg/apperr"
	"github.com/d60-Lab/anon-community/pkg/logger"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func write(c *gin.Context, status int, msg string, data interface{}) {
	c.JSON(status, Response{Code: status, Message: msg, Data: data})
}

// Success 200
func Success(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, "success", data)
}

// Created 201
func Created(c *gin.Context, data interface{}) {
	write(c, http.StatusCreated, "created", data)
}

func BadRequest(c *gin.Context, msg string)   { write(c, http.StatusBadRequest, msg, nil) }
func Unauthorized(c *gin.Context, msg string) { write(c, http.StatusUnauthorized, msg, nil) }
func Forbidden(c *gin.Context, msg string)    { write(c, http.StatusForbidden, msg, nil) }
func NotFound(c *gin.Context, msg string)     { write(c, http.StatusNotFound, msg, nil) }
func Conflict(c *gin.Context, msg string)     { write(c, http.StatusConflict, msg, nil) }

func TooManyRequests(c *gin.Context) {
	write(c, http.StatusTooManyRequests, "too many requests", nil)
}

// InternalError 500，错误细节只进日志和 Sentry
func InternalError(c *gin.Context, err error) {
	logger.Error("internal error",
		zap.Error(err),
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.String("request_id", c.GetString("request_id")),
	)
	if hub := sentry.GetHubFromContext(c.Request.Context()); hub != nil {
		hub.CaptureException(err)
	}
	write(c, http.StatusInternalServerError, "internal server error", nil)
}

// Error 按 apperr 类别映射 HTTP 状态码
func Error(c *gin.Context, err error) {
	var ae *apperr.Error
	msg := err.Error()
	if errors.As(err, &ae) {
		msg = ae.Msg
	}

	switch apperr.KindOf(err) {
	case apperr.ErrInvalidInput:
		BadRequest(c, msg)
	case apperr.ErrConflict:
		Conflict(c, msg)
	case apperr.ErrForbidden:
		Forbidden(c, msg)
	case apperr.ErrNotFound:
		NotFound(c, msg)
	case apperr.ErrUnauthorized:
		Unauthorized(c, msg)
	default:
		InternalError(c, err)
	}
}
