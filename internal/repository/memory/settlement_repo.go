package memory

import (
	"context"

	"adengine/internal/model"
	"adengine/internal/repository"
	"adengine/pkg/idgen"
)

type DailySpendRepository struct {
	s *Store
}

func (r *DailySpendRepository) Get(_ context.Context, campaignID int64, day string) (*model.DailySpend, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.daily[dailyKey{campaignID, day}]
	if !ok {
		return &model.DailySpend{CampaignID: campaignID, Day: day}, nil
	}
	cp := *row
	return &cp, nil
}

func (r *DailySpendRepository) AddInteraction(_ context.Context, campaignID int64, day string, impressions, clicks int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row := r.s.dailyRow(campaignID, day)
	row.Impressions += impressions
	row.Clicks += clicks
	return nil
}

func (s *Store) dailyRow(campaignID int64, day string) *model.DailySpend {
	key := dailyKey{campaignID, day}
	row, ok := s.daily[key]
	if !ok {
		s.dailySeq++
		now := s.now()
		row = &model.DailySpend{ID: s.dailySeq, CampaignID: campaignID, Day: day, CreatedAt: now, UpdatedAt: now}
		s.daily[key] = row
	}
	return row
}

type SettlementRepository struct {
	s *Store
}

// SettleSpend 三个条件在同一把锁里校验并落账，与 gorm 事务的语义一致
func (r *SettlementRepository) SettleSpend(_ context.Context, req model.SpendRequest) (*model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.campaigns[req.CampaignID]
	if !ok || c.Status != model.CampaignStatusActive || c.CurrentSpend.Add(req.Amount).GreaterThan(c.TotalBudget) {
		return nil, repository.ErrBudgetExhausted
	}

	row := r.s.daily[dailyKey{req.CampaignID, req.Day}]
	if row != nil && row.Spend.Add(req.Amount).GreaterThan(req.DailyCap) {
		return nil, repository.ErrDailyCapReached
	}
	if row == nil && req.Amount.GreaterThan(req.DailyCap) {
		return nil, repository.ErrDailyCapReached
	}

	w, err := r.s.walletOfOwner(req.OwnerID)
	if err != nil || w.ReservedBalance.LessThan(req.Amount) || w.Balance.LessThan(req.Amount) {
		return nil, repository.ErrReservationShort
	}

	c.CurrentSpend = c.CurrentSpend.Add(req.Amount)
	row = r.s.dailyRow(req.CampaignID, req.Day)
	row.Spend = row.Spend.Add(req.Amount)
	w.Balance = w.Balance.Sub(req.Amount)
	w.ReservedBalance = w.ReservedBalance.Sub(req.Amount)
	w.TotalSpent = w.TotalSpent.Add(req.Amount)
	w.Version++

	transactionNo := req.TransactionNo
	if transactionNo == "" {
		transactionNo = idgen.GenerateTransactionNo()
	}
	trans := r.s.appendTransactionNo(w, transactionNo, model.TransactionTypeCampaignSpend, req.Amount,
		model.CampaignReference(req.CampaignID), model.TransactionStatusCompleted, req.Remark)
	r.s.appendOutbox(req.Event.Build(trans))
	return trans, nil
}
