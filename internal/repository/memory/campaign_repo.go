package memory

import (
	"context"
	"sort"

	"adengine/internal/model"
	"adengine/internal/repository"
)

type CampaignRepository struct {
	s *Store
}

func (r *CampaignRepository) Create(_ context.Context, campaign *model.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.campaignSeq++
	now := r.s.now()
	campaign.ID = r.s.campaignSeq
	campaign.CreatedAt = now
	campaign.UpdatedAt = now
	r.s.campaigns[campaign.ID] = copyCampaign(campaign)
	return nil
}

func (r *CampaignRepository) GetByID(_ context.Context, id int64) (*model.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, repository.ErrCampaignNotFound
	}
	return copyCampaign(c), nil
}

func (r *CampaignRepository) Update(_ context.Context, campaign *model.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[campaign.ID]
	if !ok || c.Status != campaign.Status {
		return repository.ErrStatusConflict
	}
	c.CampaignType = campaign.CampaignType
	c.TargetID = campaign.TargetID
	c.TotalBudget = campaign.TotalBudget
	c.DailyBudget = campaign.DailyBudget
	c.BiddingType = campaign.BiddingType
	c.BidAmount = campaign.BidAmount
	c.StartDate = campaign.StartDate
	c.EndDate = campaign.EndDate
	c.TargetCountries = append([]string(nil), campaign.TargetCountries...)
	c.IsWorldwide = campaign.IsWorldwide
	c.Placement = campaign.Placement
	c.PriorityScore = campaign.PriorityScore
	c.UpdatedAt = r.s.now()
	return nil
}

func (r *CampaignRepository) TransitionStatus(_ context.Context, id int64, t model.Transition) error {
	if !model.CanTransitionTo(t.From, t.To) {
		return repository.ErrStatusTransitionDeny
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok || c.Status != t.From {
		return repository.ErrStatusConflict
	}
	c.Status = t.To
	if t.ReservedBudget != nil {
		c.ReservedBudget = *t.ReservedBudget
	}
	if t.PriorityScore != nil {
		c.PriorityScore = *t.PriorityScore
	}
	at := t.At
	switch {
	case t.From == model.CampaignStatusDraft && t.To == model.CampaignStatusActive:
		c.ActivatedAt = &at
	case t.To.IsTerminal():
		c.EndedAt = &at
	}
	c.UpdatedAt = r.s.now()
	r.s.appendOutbox(t.Event)
	return nil
}

func (r *CampaignRepository) RecordInteraction(_ context.Context, id int64, views, clicks int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return repository.ErrCampaignNotFound
	}
	c.Views += views
	c.Clicks += clicks
	return nil
}

func (r *CampaignRepository) UpdateScore(_ context.Context, id int64, score model.ScoreUpdate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil
	}
	c.CTR = score.CTR
	c.PriorityScore = score.PriorityScore
	if score.ActualCPC != nil {
		c.ActualCPC = *score.ActualCPC
	}
	return nil
}

func (r *CampaignRepository) CountByStatus(_ context.Context, campaignType string, status model.CampaignStatus) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total int64
	for _, c := range r.s.campaigns {
		if c.CampaignType == campaignType && c.Status == status {
			total++
		}
	}
	return total, nil
}

func (r *CampaignRepository) ListByStatus(_ context.Context, statuses []model.CampaignStatus, afterID int64, limit int) ([]*model.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	wanted := make(map[model.CampaignStatus]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}
	var out []*model.Campaign
	for _, c := range r.s.sortedCampaigns() {
		if c.ID <= afterID || !wanted[c.Status] {
			continue
		}
		out = append(out, copyCampaign(c))
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *CampaignRepository) ListServable(_ context.Context, filter model.ServableFilter) ([]*model.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Campaign
	for _, c := range r.s.sortedCampaigns() {
		if c.Status != model.CampaignStatusActive || !c.InWindow(filter.Now) || c.BudgetExhausted() {
			continue
		}
		if filter.CampaignType != "" && c.CampaignType != filter.CampaignType {
			continue
		}
		out = append(out, copyCampaign(c))
	}
	return out, nil
}

func (r *CampaignRepository) ListByOwnerID(_ context.Context, ownerID int64, page, pageSize int) ([]*model.Campaign, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var owned []*model.Campaign
	all := r.s.sortedCampaigns()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].OwnerID == ownerID {
			owned = append(owned, all[i])
		}
	}
	total := int64(len(owned))
	start := (page - 1) * pageSize
	if start < 0 || start >= len(owned) {
		return []*model.Campaign{}, total, nil
	}
	end := start + pageSize
	if end > len(owned) {
		end = len(owned)
	}
	out := make([]*model.Campaign, 0, end-start)
	for _, c := range owned[start:end] {
		out = append(out, copyCampaign(c))
	}
	return out, total, nil
}

// sortedCampaigns 按 id 升序，调用方需持有 s.mu
func (s *Store) sortedCampaigns() []*model.Campaign {
	out := make([]*model.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
