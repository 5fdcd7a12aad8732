package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"adengine/internal/model"
	"adengine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// HeaderUserID 由上游鉴权网关写入
	HeaderUserID    = "X-User-ID"
	HeaderRequestID = "X-Request-ID"
)

const (
	callerKey    = "caller"
	requestIDKey = "request_id"
)

// RequestIDMiddleware 沿用上游传来的 X-Request-ID，没有就生成一个并回写到响应头
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// LoggerMiddleware 访问日志，5xx 记 error，4xx 记 warn
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
			slog.String(requestIDKey, c.GetString(requestIDKey)),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			attrs = append(attrs, slog.String("query", q))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}
		logger.LogAttrs(c.Request.Context(), level, "http", attrs...)
	}
}

// RecoveryMiddleware panic 时返回 500，进程继续服务
func RecoveryMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic",
					slog.Any("error", rec),
					slog.String("path", c.Request.URL.Path),
					slog.String(requestIDKey, c.GetString(requestIDKey)))
				c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
					Code:    response.CodeServerError,
					Message: response.Text(response.CodeServerError),
				})
			}
		}()
		c.Next()
	}
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, "+HeaderRequestID+", "+HeaderUserID)
		c.Header("Access-Control-Expose-Headers", HeaderRequestID)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// CallerMiddleware 把网关传来的用户身份转成 model.Caller，之后的业务代码只认 Caller
func CallerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader(HeaderUserID), 10, 64)
		if err != nil || userID <= 0 {
			response.Unauthorized(c, "缺少或无效的 "+HeaderUserID)
			return
		}
		c.Set(callerKey, model.Caller{UserID: userID})
		c.Next()
	}
}

func callerFrom(c *gin.Context) model.Caller {
	v, _ := c.Get(callerKey)
	caller, _ := v.(model.Caller)
	return caller
}
