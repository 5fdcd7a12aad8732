package handler

import (
	"time"

	"adengine/internal/model"
	"adengine/internal/service"
	"adengine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type SettingsRequest struct {
	TargetCountries []string `json:"target_countries"`
	IsWorldwide     *bool    `json:"is_worldwide"`
	Placement       string   `json:"placement"`
}

func (r *SettingsRequest) toService() service.CampaignSettings {
	if r == nil {
		return service.CampaignSettings{}
	}
	return service.CampaignSettings{
		TargetCountries: r.TargetCountries,
		IsWorldwide:     r.IsWorldwide,
		Placement:       r.Placement,
	}
}

// SettingsPatchRequest 修改投放设置时只传要改的字段
// target_countries 传 [] 表示清空国家列表，不传或传 null 表示不变
type SettingsPatchRequest struct {
	TargetCountries *[]string `json:"target_countries"`
	IsWorldwide     *bool     `json:"is_worldwide"`
	Placement       *string   `json:"placement"`
}

func (r *SettingsPatchRequest) toService() *service.SettingsPatch {
	if r == nil {
		return nil
	}
	return &service.SettingsPatch{
		TargetCountries: r.TargetCountries,
		IsWorldwide:     r.IsWorldwide,
		Placement:       r.Placement,
	}
}

// CreateCampaignRequest 金额字段用字符串或数字都可以，例如 "100.50"
type CreateCampaignRequest struct {
	CampaignType string           `json:"campaign_type" binding:"required"`
	TargetID     int64            `json:"target_id" binding:"required,gt=0"`
	TotalBudget  *decimal.Decimal `json:"total_budget" binding:"required"`
	DailyBudget  *decimal.Decimal `json:"daily_budget" binding:"required"`
	BiddingType  string           `json:"bidding_type" binding:"required"`
	BidAmount    *decimal.Decimal `json:"bid_amount" binding:"required"`
	StartDate    *time.Time       `json:"start_date" binding:"required"`
	EndDate      *time.Time       `json:"end_date" binding:"required"`
	Settings     *SettingsRequest `json:"settings"`
}

// CreateCampaign 创建推广计划（草稿）
// POST /api/v1/campaigns
func (h *Handler) CreateCampaign(c *gin.Context) {
	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	campaign, err := h.campaigns.Create(c.Request.Context(), callerFrom(c), service.CreateCampaignRequest{
		CampaignType: req.CampaignType,
		TargetID:     req.TargetID,
		TotalBudget:  *req.TotalBudget,
		DailyBudget:  *req.DailyBudget,
		BiddingType:  req.BiddingType,
		BidAmount:    *req.BidAmount,
		StartDate:    *req.StartDate,
		EndDate:      *req.EndDate,
		Settings:     req.Settings.toService(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, campaign)
}

// ListCampaigns 当前用户的推广计划，新建的在前
// GET /api/v1/campaigns?page=1&page_size=10
func (h *Handler) ListCampaigns(c *gin.Context) {
	page, pageSize := pageParams(c)
	campaigns, total, err := h.campaigns.List(c.Request.Context(), callerFrom(c), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Paged(c, campaigns, total, page, pageSize)
}

// GetCampaign GET /api/v1/campaigns/:id
func (h *Handler) GetCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	campaign, err := h.campaigns.Get(c.Request.Context(), callerFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, campaign)
}

// ActivateCampaign 预留总预算并开始投放
// POST /api/v1/campaigns/:id/activate
func (h *Handler) ActivateCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	campaign, err := h.campaigns.Activate(c.Request.Context(), callerFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, campaign)
}

// UpdateCampaignRequest 只传需要修改的字段
type UpdateCampaignRequest struct {
	CampaignType *string               `json:"campaign_type"`
	TargetID     *int64                `json:"target_id"`
	TotalBudget  *decimal.Decimal      `json:"total_budget"`
	DailyBudget  *decimal.Decimal      `json:"daily_budget"`
	BiddingType  *string               `json:"bidding_type"`
	BidAmount    *decimal.Decimal      `json:"bid_amount"`
	StartDate    *time.Time            `json:"start_date"`
	EndDate      *time.Time            `json:"end_date"`
	Settings     *SettingsPatchRequest `json:"settings"`
}

// UpdateCampaign PUT /api/v1/campaigns/:id
func (h *Handler) UpdateCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req UpdateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	update := service.UpdateCampaignRequest{
		CampaignType: req.CampaignType,
		TargetID:     req.TargetID,
		TotalBudget:  req.TotalBudget,
		DailyBudget:  req.DailyBudget,
		BiddingType:  req.BiddingType,
		BidAmount:    req.BidAmount,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Settings:     req.Settings.toService(),
	}

	campaign, err := h.campaigns.Update(c.Request.Context(), callerFrom(c), id, update)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, campaign)
}

// CancelCampaign 取消并退回未消耗的预留
// POST /api/v1/campaigns/:id/cancel
func (h *Handler) CancelCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	result, err := h.campaigns.Cancel(c.Request.Context(), callerFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// GetAnalytics GET /api/v1/campaigns/:id/analytics
func (h *Handler) GetAnalytics(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	analytics, err := h.campaigns.Analytics(c.Request.Context(), callerFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, analytics)
}

// GetLedger 推广计划相关的钱包流水
// GET /api/v1/campaigns/:id/transactions
func (h *Handler) GetLedger(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	list, err := h.campaigns.Ledger(c.Request.Context(), callerFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []*model.Transaction{}
	}
	response.Success(c, list)
}

type TrackRequest struct {
	Type string `json:"type" binding:"required"`
}

// TrackInteraction 曝光/点击上报，公开接口
// POST /api/v1/campaigns/:id/track
func (h *Handler) TrackInteraction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	result, err := h.settlement.TrackInteraction(c.Request.Context(), id, req.Type)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

type SponsoredQuery struct {
	Type      string `form:"type"`
	Placement string `form:"placement"`
	Country   string `form:"country"`
	Limit     int    `form:"limit" binding:"gte=0"`
}

// ListSponsored 广告位候选列表，公开接口
// GET /api/v1/sponsored?type=store&placement=homepage&country=US&limit=3
func (h *Handler) ListSponsored(c *gin.Context) {
	var q SponsoredQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	campaigns, err := h.slots.List(c.Request.Context(), service.ListQuery{
		CampaignType: q.Type,
		Placement:    q.Placement,
		Country:      q.Country,
		Limit:        q.Limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if campaigns == nil {
		campaigns = []*model.Campaign{}
	}
	response.Success(c, gin.H{"campaigns": campaigns, "count": len(campaigns)})
}
