package service

import (
	"errors"
	"fmt"

	"adengine/internal/repository"
)

var (
	ErrValidation          = errors.New("参数校验失败")
	ErrNotFound            = errors.New("资源不存在")
	ErrNotOwner            = errors.New("无权操作该推广计划")
	ErrInsufficientBalance = errors.New("钱包可用余额不足")
	ErrInvalidState        = errors.New("推广计划当前状态不允许该操作")
	ErrNotActive           = errors.New("推广计划未在投放中")

	// ErrSlotsFull 该类型投放中的推广计划已达上限，属于校验错误
	ErrSlotsFull = fmt.Errorf("%w: 该类型的推广位已满", ErrValidation)
)

// ValidationError 带字段信息的校验错误，errors.Is(err, ErrValidation) 为 true
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// mapRepoError 把存储层错误翻译成对外的错误分类
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrCampaignNotFound),
		errors.Is(err, repository.ErrWalletNotFound),
		errors.Is(err, repository.ErrDepositNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repository.ErrInsufficientAvailable):
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	case errors.Is(err, repository.ErrStatusConflict),
		errors.Is(err, repository.ErrStatusTransitionDeny):
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	case errors.Is(err, repository.ErrDepositAmountMismatch):
		return invalid("amount", err.Error())
	case errors.Is(err, repository.ErrDepositReferenceMissing):
		return invalid("referenceId", err.Error())
	}
	return err
}
