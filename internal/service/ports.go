package service

import (
	"context"
	"time"

	"adengine/internal/model"

	"github.com/shopspring/decimal"
)

// 以下接口由 internal/repository（gorm）与 internal/repository/memory 共同实现
// outbox 事件通过 model.Transition.Event、model.SpendRequest.Event 和 model.LedgerEvent
// 交给存储层，与对应的业务变更同事务写入

type WalletStore interface {
	GetByOwnerID(ctx context.Context, ownerID int64) (*model.Wallet, error)
	GetByID(ctx context.Context, walletID int64) (*model.Wallet, error)
	GetOrCreate(ctx context.Context, ownerID int64) (*model.Wallet, error)
	Reserve(ctx context.Context, ownerID int64, amount decimal.Decimal, referenceID string) (*model.Transaction, error)
	Release(ctx context.Context, ownerID int64, amount decimal.Decimal, referenceID string, event model.LedgerEvent) (*model.Transaction, error)
	Withdraw(ctx context.Context, ownerID int64, amount decimal.Decimal, referenceID string) (*model.Transaction, error)
	CreatePendingDeposit(ctx context.Context, ownerID int64, amount decimal.Decimal, referenceID string) (*model.Transaction, error)
	CompleteDeposit(ctx context.Context, walletID int64, referenceID string, amount decimal.Decimal, event model.LedgerEvent) (*model.Transaction, bool, error)
	FailDeposit(ctx context.Context, walletID int64, referenceID string) (bool, error)
	ListTransactions(ctx context.Context, ownerID int64, page, pageSize int) ([]*model.Transaction, int64, error)
	ListByReference(ctx context.Context, referenceID string) ([]*model.Transaction, error)
}

type CampaignStore interface {
	Create(ctx context.Context, campaign *model.Campaign) error
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	Update(ctx context.Context, campaign *model.Campaign) error
	TransitionStatus(ctx context.Context, id int64, t model.Transition) error
	RecordInteraction(ctx context.Context, id int64, views, clicks int64) error
	UpdateScore(ctx context.Context, id int64, score model.ScoreUpdate) error
	CountByStatus(ctx context.Context, campaignType string, status model.CampaignStatus) (int64, error)
	ListByStatus(ctx context.Context, statuses []model.CampaignStatus, afterID int64, limit int) ([]*model.Campaign, error)
	ListServable(ctx context.Context, filter model.ServableFilter) ([]*model.Campaign, error)
	ListByOwnerID(ctx context.Context, ownerID int64, page, pageSize int) ([]*model.Campaign, int64, error)
}

type DailySpendStore interface {
	Get(ctx context.Context, campaignID int64, day string) (*model.DailySpend, error)
	AddInteraction(ctx context.Context, campaignID int64, day string, impressions, clicks int64) error
}

type SettlementStore interface {
	SettleSpend(ctx context.Context, req model.SpendRequest) (*model.Transaction, error)
}

// TargetDirectory 店铺/优惠券/团购的归属查询
type TargetDirectory interface {
	OwnerOf(ctx context.Context, campaignType string, targetID int64) (int64, error)
}

// ListingCache 广告位结果缓存，未命中返回 nil, nil
type ListingCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Stores 服务层依赖的全部存储
type Stores struct {
	Wallets     WalletStore
	Campaigns   CampaignStore
	DailySpends DailySpendStore
	Settlement  SettlementStore
	Targets     TargetDirectory
}
