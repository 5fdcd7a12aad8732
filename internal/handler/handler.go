package handler

import (
	"errors"
	"log/slog"
	"strconv"

	"adengine/internal/job"
	"adengine/internal/service"
	"adengine/pkg/response"

	"github.com/gin-gonic/gin"
)

// Services 处理器依赖的业务服务
type Services struct {
	Campaigns  *service.CampaignService
	Settlement *service.SettlementService
	Slots      *service.SlotAllocator
	Wallets    *service.WalletService
	Scheduler  *job.Scheduler
}

// Handler 统一处理器
type Handler struct {
	campaigns  *service.CampaignService
	settlement *service.SettlementService
	slots      *service.SlotAllocator
	wallets    *service.WalletService
	scheduler  *job.Scheduler
	logger     *slog.Logger
}

func NewHandler(svcs Services, logger *slog.Logger) *Handler {
	return &Handler{
		campaigns:  svcs.Campaigns,
		settlement: svcs.Settlement,
		slots:      svcs.Slots,
		wallets:    svcs.Wallets,
		scheduler:  svcs.Scheduler,
		logger:     logger.With(slog.String("component", "http")),
	}
}

// fail 把业务错误翻译成响应码，未识别的错误按服务器错误处理并记日志
func (h *Handler) fail(c *gin.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.Is(err, service.ErrSlotsFull):
		response.BusinessError(c, response.CodeSlotsFull, err.Error())
	case errors.As(err, &verr):
		response.ParamError(c, verr.Error())
	case errors.Is(err, service.ErrValidation):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, job.ErrUnknownJob):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrNotOwner):
		response.Forbidden(c, err.Error())
	case errors.Is(err, service.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeInsufficientBalance, err.Error())
	case errors.Is(err, service.ErrInvalidState):
		response.BusinessError(c, response.CodeInvalidState, err.Error())
	case errors.Is(err, service.ErrNotActive):
		response.BusinessError(c, response.CodeNotActive, err.Error())
	case errors.Is(err, job.ErrJobBusy):
		response.BusinessError(c, response.CodeJobBusy, err.Error())
	default:
		h.logger.Error("请求处理失败",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Any("error", err))
		response.ServerError(c, "")
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "id 参数错误")
		return 0, false
	}
	return id, true
}

// pageParams page 从 1 开始，page_size 默认 10，最大 100
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
