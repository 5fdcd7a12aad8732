package memory

import (
	"context"

	"adengine/internal/repository"
)

type TargetRepository struct {
	s *Store
}

// Register 登记推广目标的所有者（目录服务之外的本地数据）
func (r *TargetRepository) Register(campaignType string, targetID, ownerID int64) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.targets[targetKey{campaignType, targetID}] = ownerID
}

func (r *TargetRepository) OwnerOf(_ context.Context, campaignType string, targetID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	owner, ok := r.s.targets[targetKey{campaignType, targetID}]
	if !ok {
		return 0, repository.ErrTargetNotFound
	}
	return owner, nil
}
