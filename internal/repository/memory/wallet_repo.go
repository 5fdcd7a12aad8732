package memory

import (
	"context"

	"adengine/internal/model"
	"adengine/internal/repository"
	"adengine/pkg/idgen"

	"github.com/shopspring/decimal"
)

type WalletRepository struct {
	s *Store
}

func (r *WalletRepository) GetByOwnerID(_ context.Context, ownerID int64) (*model.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, err := r.s.walletOfOwner(ownerID)
	if err != nil {
		return nil, err
	}
	return copyWallet(w), nil
}

func (r *WalletRepository) GetByID(_ context.Context, walletID int64) (*model.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[walletID]
	if !ok {
		return nil, repository.ErrWalletNotFound
	}
	return copyWallet(w), nil
}

func (r *WalletRepository) GetOrCreate(_ context.Context, ownerID int64) (*model.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return copyWallet(r.s.walletOrCreate(ownerID)), nil
}

func (r *WalletRepository) Reserve(_ context.Context, ownerID int64, amount decimal.Decimal, referenceID string) (*model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, err := r.s.walletOfOwner(ownerID)
	if err != nil {
		return nil, err
	}
	if w.Balance.Sub(w.ReservedBalance).LessThan(amount) {
		return nil, repository.ErrInsufficientAvailable
	}
	w.ReservedBalance = w.ReservedBalance.Add(amount)
	w.Version++
	return r.s.appendTransaction(w, model.TransactionTypeCampaignReserve, amount, referenceID, model.TransactionStatusCompleted, "推广预算预留"), nil
}

// Release 与 gorm 实现一致：不超过该计划自己未结清的预留
func (r *WalletRepository) Release(_ context.Context, ownerID int64, amount decimal.Decimal, referenceID string, event model.LedgerEvent) (*model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, err := r.s.walletOfOwner(ownerID)
	if err != nil {
		return nil, err
	}
	released := decimal.Min(amount, r.s.outstanding(w.ID, referenceID), w.ReservedBalance)
	if !released.IsPositive() {
		return nil, nil
	}
	w.ReservedBalance = w.ReservedBalance.Sub(released)
	w.Version++
	trans := r.s.appendTransaction(w, model.TransactionTypeCampaignRefund, released, referenceID, model.TransactionStatusCompleted, "推广预算释放")
	r.s.appendOutbox(event.Build(trans))
	return trans, nil
}

func (r *WalletRepository) Withdraw(_ context.Context, ownerID int64, amount decimal.Decimal, referenceID string) (*model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, err := r.s.walletOfOwner(ownerID)
	if err != nil {
		return nil, err
	}
	if w.Balance.Sub(w.ReservedBalance).LessThan(amount) {
		return nil, repository.ErrInsufficientAvailable
	}
	w.Balance = w.Balance.Sub(amount)
	w.Version++
	return r.s.appendTransaction(w, model.TransactionTypeWithdrawal, amount, referenceID, model.TransactionStatusCompleted, "提现"), nil
}

func (r *WalletRepository) CreatePendingDeposit(_ context.Context, ownerID int64, amount decimal.Decimal, referenceID string) (*model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w := r.s.walletOrCreate(ownerID)
	return r.s.appendTransaction(w, model.TransactionTypeDeposit, amount, referenceID, model.TransactionStatusPending, "充值待到账"), nil
}

func (r *WalletRepository) CompleteDeposit(_ context.Context, walletID int64, referenceID string, amount decimal.Decimal, event model.LedgerEvent) (*model.Transaction, bool, error) {
	if referenceID == "" {
		return nil, false, repository.ErrDepositReferenceMissing
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[walletID]
	if !ok {
		return nil, false, repository.ErrWalletNotFound
	}

	deposit := r.s.findDeposit(walletID, referenceID)
	if deposit == nil && model.IsDepositOrder(referenceID) {
		return nil, false, repository.ErrDepositNotFound
	}
	if deposit != nil && deposit.Status != model.TransactionStatusPending {
		return copyTransaction(deposit), false, nil
	}
	if deposit != nil && !deposit.Amount.Equal(amount) {
		return nil, false, repository.ErrDepositAmountMismatch
	}

	w.Balance = w.Balance.Add(amount)
	w.TotalDeposited = w.TotalDeposited.Add(amount)
	w.Version++
	var trans *model.Transaction
	if deposit == nil {
		// 网关直接入账，没有事先创建的充值单
		trans = r.s.appendTransaction(w, model.TransactionTypeDeposit, amount, referenceID, model.TransactionStatusCompleted, "充值到账")
	} else {
		deposit.Status = model.TransactionStatusCompleted
		deposit.BalanceAfter = w.Balance
		trans = copyTransaction(deposit)
	}
	r.s.appendOutbox(event.Build(trans))
	return trans, true, nil
}

func (r *WalletRepository) FailDeposit(_ context.Context, walletID int64, referenceID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pending := r.s.findDeposit(walletID, referenceID)
	if pending == nil {
		return false, repository.ErrDepositNotFound
	}
	if pending.Status != model.TransactionStatusPending {
		return false, nil
	}
	pending.Status = model.TransactionStatusFailed
	return true, nil
}

func (r *WalletRepository) ListTransactions(_ context.Context, ownerID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var owned []*model.Transaction
	for i := len(r.s.transactions) - 1; i >= 0; i-- {
		if t := r.s.transactions[i]; t.OwnerID == ownerID {
			owned = append(owned, t)
		}
	}
	total := int64(len(owned))
	start := (page - 1) * pageSize
	if start < 0 || start >= len(owned) {
		return []*model.Transaction{}, total, nil
	}
	end := start + pageSize
	if end > len(owned) {
		end = len(owned)
	}
	out := make([]*model.Transaction, 0, end-start)
	for _, t := range owned[start:end] {
		out = append(out, copyTransaction(t))
	}
	return out, total, nil
}

// ListByReference 按写入顺序返回
func (r *WalletRepository) ListByReference(_ context.Context, referenceID string) ([]*model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Transaction
	for _, t := range r.s.transactions {
		if t.ReferenceID == referenceID {
			out = append(out, copyTransaction(t))
		}
	}
	return out, nil
}

// 以下方法要求调用方已持有 s.mu

func (s *Store) walletOfOwner(ownerID int64) (*model.Wallet, error) {
	id, ok := s.walletByOwner[ownerID]
	if !ok {
		return nil, repository.ErrWalletNotFound
	}
	return s.wallets[id], nil
}

func (s *Store) walletOrCreate(ownerID int64) *model.Wallet {
	if w, err := s.walletOfOwner(ownerID); err == nil {
		return w
	}
	s.walletSeq++
	now := s.now()
	w := &model.Wallet{
		ID:        s.walletSeq,
		OwnerID:   ownerID,
		Currency:  model.DefaultCurrency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.wallets[w.ID] = w
	s.walletByOwner[ownerID] = w.ID
	return w
}

func (s *Store) appendTransaction(w *model.Wallet, txType string, amount decimal.Decimal, referenceID, status, remark string) *model.Transaction {
	return s.appendTransactionNo(w, idgen.GenerateTransactionNo(), txType, amount, referenceID, status, remark)
}

func (s *Store) appendTransactionNo(w *model.Wallet, transactionNo, txType string, amount decimal.Decimal, referenceID, status, remark string) *model.Transaction {
	s.txnSeq++
	w.UpdatedAt = s.now()
	t := &model.Transaction{
		ID:            s.txnSeq,
		TransactionNo: transactionNo,
		OwnerID:       w.OwnerID,
		WalletID:      w.ID,
		Type:          txType,
		Amount:        amount,
		BalanceAfter:  w.Balance,
		ReferenceID:   referenceID,
		Status:        status,
		Remark:        remark,
		CreatedAt:     s.now(),
	}
	s.transactions = append(s.transactions, t)
	return copyTransaction(t)
}

// outstanding 某个推广计划尚未消耗也未退回的预留
func (s *Store) outstanding(walletID int64, referenceID string) decimal.Decimal {
	total := decimal.Zero
	for _, t := range s.transactions {
		if t.WalletID != walletID || t.ReferenceID != referenceID || t.Status != model.TransactionStatusCompleted {
			continue
		}
		switch t.Type {
		case model.TransactionTypeCampaignReserve:
			total = total.Add(t.Amount)
		case model.TransactionTypeCampaignSpend, model.TransactionTypeCampaignRefund:
			total = total.Sub(t.Amount)
		}
	}
	return total
}

func (s *Store) findDeposit(walletID int64, referenceID string) *model.Transaction {
	for _, t := range s.transactions {
		if t.WalletID == walletID && t.ReferenceID == referenceID && t.Type == model.TransactionTypeDeposit {
			return t
		}
	}
	return nil
}
