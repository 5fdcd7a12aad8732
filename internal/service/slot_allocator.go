package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"adengine/internal/config"
	"adengine/internal/model"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type ListQuery struct {
	CampaignType string
	Placement    string
	Country      string
	Limit        int
}

func (q ListQuery) cacheKey() string {
	return fmt.Sprintf("sponsored:%s:%s:%s:%d", q.CampaignType, q.Placement, strings.ToUpper(q.Country), q.Limit)
}

// SlotAllocator 广告位候选集：投放中、在投放时间内、预算未用完、位置和地域匹配，按优先级排序后截断
type SlotAllocator struct {
	campaigns CampaignStore
	slots     map[string]config.SlotConfig
	cache     ListingCache
	cacheTTL  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewSlotAllocator cache 可以为 nil
func NewSlotAllocator(campaigns CampaignStore, cfg *config.Config, cache ListingCache, logger *slog.Logger) *SlotAllocator {
	return &SlotAllocator{
		campaigns: campaigns,
		slots:     cfg.Slots,
		cache:     cache,
		cacheTTL:  cfg.Scheduler.SlotCacheTTL,
		logger:    logger.With(slog.String("component", "slot_allocator")),
		now:       time.Now,
	}
}

func (a *SlotAllocator) SetClock(now func() time.Time) {
	a.now = now
}

func (a *SlotAllocator) List(ctx context.Context, q ListQuery) ([]*model.Campaign, error) {
	if q.CampaignType != "" {
		if _, ok := a.slots[q.CampaignType]; !ok {
			return nil, invalid("type", "必须是 store、coupon 或 deal")
		}
	}
	switch q.Placement {
	case "", model.PlacementHomepage, model.PlacementCategory, model.PlacementSearch:
	default:
		return nil, invalid("placement", "必须是 homepage、category 或 search")
	}
	if q.Limit < 0 {
		return nil, invalid("limit", "不能为负数")
	}

	useCache := a.cache != nil && a.cacheTTL > 0
	if useCache {
		if cached, ok := a.fromCache(ctx, q); ok {
			return cached, nil
		}
	}

	now := a.now()
	candidates, err := a.campaigns.ListServable(ctx, model.ServableFilter{CampaignType: q.CampaignType, Now: now})
	if err != nil {
		return nil, err
	}

	selected := make([]*model.Campaign, 0, len(candidates))
	for _, c := range candidates {
		if !servable(c, q, now) {
			continue
		}
		selected = append(selected, c)
	}
	RankCampaigns(selected)

	if n := a.limitFor(q); len(selected) > n {
		selected = selected[:n]
	}

	if useCache {
		a.toCache(ctx, q, selected)
	}
	return selected, nil
}

// limitFor 指定类型时按该类型该位置的广告位数量截断，limit 只能再缩小；不指定类型时只按 limit
func (a *SlotAllocator) limitFor(q ListQuery) int {
	if q.CampaignType == "" {
		switch {
		case q.Limit == 0:
			return defaultListLimit
		case q.Limit > maxListLimit:
			return maxListLimit
		}
		return q.Limit
	}
	n := a.slots[q.CampaignType].SlotCount(q.Placement)
	if q.Limit > 0 && q.Limit < n {
		n = q.Limit
	}
	return n
}

func servable(c *model.Campaign, q ListQuery, now time.Time) bool {
	if c.Status != model.CampaignStatusActive || !c.InWindow(now) || c.BudgetExhausted() {
		return false
	}
	if q.Placement != "" && c.Placement != q.Placement && c.Placement != model.PlacementAll {
		return false
	}
	if q.Country != "" && !IsCountryAvailable(q.Country, c.TargetCountries, c.IsWorldwide) {
		return false
	}
	return true
}

// RankCampaigns priority_score 降序；同分按 created_at、id 升序，保证结果与存储顺序无关
func RankCampaigns(campaigns []*model.Campaign) {
	sort.SliceStable(campaigns, func(i, j int) bool {
		a, b := campaigns[i], campaigns[j]
		if a.PriorityScore != b.PriorityScore {
			return a.PriorityScore > b.PriorityScore
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func (a *SlotAllocator) fromCache(ctx context.Context, q ListQuery) ([]*model.Campaign, bool) {
	raw, err := a.cache.Get(ctx, q.cacheKey())
	if err != nil {
		a.logger.Warn("读取广告位缓存失败", slog.Any("error", err))
		return nil, false
	}
	if raw == nil {
		return nil, false
	}
	var out []*model.Campaign
	if err := json.Unmarshal(raw, &out); err != nil {
		a.logger.Warn("广告位缓存内容无效", slog.Any("error", err))
		return nil, false
	}
	return out, true
}

func (a *SlotAllocator) toCache(ctx context.Context, q ListQuery, campaigns []*model.Campaign) {
	raw, err := json.Marshal(campaigns)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, q.cacheKey(), raw, a.cacheTTL); err != nil {
		a.logger.Warn("写入广告位缓存失败", slog.Any("error", err))
	}
}
