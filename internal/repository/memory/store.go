// Package memory 内存版存储，语义与 gorm 实现一致（条件更新、同锁内原子落账）
// 用于单元测试以及 storage.driver=memory 的本地演示
package memory

import (
	"sync"
	"time"

	"adengine/internal/model"
)

type dailyKey struct {
	campaignID int64
	day        string
}

type targetKey struct {
	campaignType string
	targetID     int64
}

// Store 所有表共用一把锁，跨表操作（实时扣费）天然原子
type Store struct {
	mu sync.Mutex

	wallets       map[int64]*model.Wallet
	walletByOwner map[int64]int64
	transactions  []*model.Transaction
	campaigns     map[int64]*model.Campaign
	daily         map[dailyKey]*model.DailySpend
	outbox        []*model.OutboxMessage
	targets       map[targetKey]int64

	walletSeq   int64
	txnSeq      int64
	campaignSeq int64
	dailySeq    int64
	outboxSeq   int64

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		wallets:       make(map[int64]*model.Wallet),
		walletByOwner: make(map[int64]int64),
		campaigns:     make(map[int64]*model.Campaign),
		daily:         make(map[dailyKey]*model.DailySpend),
		targets:       make(map[targetKey]int64),
		now:           time.Now,
	}
}

// SetClock 替换时间源，测试里用来固定 created_at
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Wallets() *WalletRepository {
	return &WalletRepository{s: s}
}

func (s *Store) Campaigns() *CampaignRepository {
	return &CampaignRepository{s: s}
}

func (s *Store) DailySpends() *DailySpendRepository {
	return &DailySpendRepository{s: s}
}

func (s *Store) Settlement() *SettlementRepository {
	return &SettlementRepository{s: s}
}

func (s *Store) Outbox() *OutboxRepository {
	return &OutboxRepository{s: s}
}

func (s *Store) Targets() *TargetRepository {
	return &TargetRepository{s: s}
}

func copyCampaign(c *model.Campaign) *model.Campaign {
	cp := *c
	if c.TargetCountries != nil {
		cp.TargetCountries = append([]string(nil), c.TargetCountries...)
	}
	return &cp
}

func copyWallet(w *model.Wallet) *model.Wallet {
	cp := *w
	return &cp
}

func copyTransaction(t *model.Transaction) *model.Transaction {
	cp := *t
	return &cp
}
