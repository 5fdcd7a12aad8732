package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 通用错误码沿用 HTTP 语义，业务错误码从 1001 开始
const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000

	CodeInsufficientBalance = 1001 // 可用余额不足
	CodeInvalidState        = 1002 // 推广计划当前状态不允许该操作
	CodeNotActive           = 1003 // 推广计划未在投放，交互不计费
	CodeSlotsFull           = 1004 // 同类型投放中的推广计划已达上限
	CodeJobBusy             = 1005 // 调度任务正在其他实例执行
)

var codeText = map[int]string{
	CodeSuccess:             "success",
	CodeParamError:          "参数错误",
	CodeUnauthorized:        "未登录",
	CodeForbidden:           "无权访问",
	CodeNotFound:            "资源不存在",
	CodeServerError:         "服务器内部错误",
	CodeBusinessError:       "业务处理失败",
	CodeInsufficientBalance: "余额不足",
	CodeInvalidState:        "状态不允许",
	CodeNotActive:           "推广计划未投放",
	CodeSlotsFull:           "投放名额已满",
	CodeJobBusy:             "任务执行中",
}

// Text 错误码的默认文案
func Text(code int) string {
	if msg, ok := codeText[code]; ok {
		return msg
	}
	return codeText[CodeBusinessError]
}

// Response HTTP 状态码固定 200，调用方看 code
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type Page struct {
	List     any   `json:"list"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: CodeSuccess, Message: Text(CodeSuccess), Data: data})
}

// Paged 分页列表
func Paged(c *gin.Context, list any, total int64, page, pageSize int) {
	Success(c, Page{List: list, Total: total, Page: page, PageSize: pageSize})
}

// Error message 为空时用错误码的默认文案
func Error(c *gin.Context, code int, message string) {
	if message == "" {
		message = Text(code)
	}
	c.JSON(http.StatusOK, Response{Code: code, Message: message})
}

func ParamError(c *gin.Context, message string) { Error(c, CodeParamError, message) }

func NotFound(c *gin.Context, message string) { Error(c, CodeNotFound, message) }

func Forbidden(c *gin.Context, message string) { Error(c, CodeForbidden, message) }

func ServerError(c *gin.Context, message string) { Error(c, CodeServerError, message) }

func BusinessError(c *gin.Context, code int, message string) { Error(c, code, message) }

// Unauthorized 中间件里用，终止后续 handler
func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = Text(CodeUnauthorized)
	}
	c.AbortWithStatusJSON(http.StatusOK, Response{Code: CodeUnauthorized, Message: message})
}
