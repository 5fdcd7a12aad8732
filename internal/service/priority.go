package service

import (
	"math"

	"adengine/internal/config"
	"adengine/internal/model"

	"github.com/shopspring/decimal"
)

const maxScore = 100

// PriorityScorer 排序分，所有结果只依赖推广计划当前的字段，重复计算结果不变
type PriorityScorer struct {
	w config.PriorityWeights
}

func NewPriorityScorer(w config.PriorityWeights) *PriorityScorer {
	return &PriorityScorer{w: w}
}

// Performance min(ctr*50 + conversions*10, 100)
func (p *PriorityScorer) Performance(c *model.Campaign) float64 {
	return math.Min(c.CTR*p.w.CTRFactor+float64(c.Conversions)*p.w.ConversionFactor, maxScore)
}

// BudgetHealth min(remaining/total*100, 100)，超扣时记为 0
func (p *PriorityScorer) BudgetHealth(c *model.Campaign) float64 {
	if !c.TotalBudget.IsPositive() {
		return 0
	}
	ratio := c.RemainingBudget().Div(c.TotalBudget).Mul(decimal.NewFromInt(100)).InexactFloat64()
	return math.Max(0, math.Min(ratio, maxScore))
}

// Light 批量刷新用：bid*0.7 + performance*0.3
func (p *PriorityScorer) Light(c *model.Campaign) float64 {
	return round4(c.BidAmount.InexactFloat64()*p.w.BidLight + p.Performance(c)*p.w.PerformanceLight)
}

// Full 交互结算用：bid*0.5 + performance*0.3 + budgetHealth*0.2
func (p *PriorityScorer) Full(c *model.Campaign) float64 {
	return p.full(c, p.BudgetHealth(c))
}

// Initial 激活时预算还没有任何消耗，预算健康度按满分计
func (p *PriorityScorer) Initial(c *model.Campaign) float64 {
	return p.full(c, maxScore)
}

func (p *PriorityScorer) full(c *model.Campaign, health float64) float64 {
	return round4(c.BidAmount.InexactFloat64()*p.w.Bid + p.Performance(c)*p.w.Performance + health*p.w.BudgetHealth)
}

// CTR clicks/views*100，没有曝光时为 0
func CTR(views, clicks int64) float64 {
	if views <= 0 {
		return 0
	}
	return round4(float64(clicks) / float64(views) * 100)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
