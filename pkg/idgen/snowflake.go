package idgen

import (
	"fmt"
	"sync"
	"time"
)

// 雪花 ID：0 | 41 位毫秒时间戳 | 10 位机器 ID | 12 位序列号
//
// 流水号、充值单号、提现单号都从这里取。实时扣费每次曝光/点击都会生成一个流水号，
// 多实例部署时靠 server.worker_id 区分机器，同一实例内靠序列号区分。

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

type Snowflake struct {
	mu       sync.Mutex
	lastMs   int64
	workerID int64
	sequence int64
	now      func() int64
}

func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID 必须在 0-%d 之间，当前为 %d", maxWorkerID, workerID)
	}
	return &Snowflake{
		workerID: workerID,
		now:      func() int64 { return time.Now().UnixMilli() },
	}, nil
}

var (
	mu            sync.Mutex
	defaultWorker *Snowflake
)

// Init 设置进程级生成器，只在启动时调用一次
func Init(workerID int64) error {
	s, err := NewSnowflake(workerID)
	if err != nil {
		return err
	}
	mu.Lock()
	defaultWorker = s
	mu.Unlock()
	return nil
}

func worker() *Snowflake {
	mu.Lock()
	defer mu.Unlock()
	if defaultWorker == nil {
		defaultWorker, _ = NewSnowflake(1)
	}
	return defaultWorker
}

func NextID() int64 {
	return worker().Generate()
}

// Generate 时钟回拨时沿用上一次的毫秒数继续递增序列号，保证 ID 不重复
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := s.now()
	if ms < s.lastMs {
		ms = s.lastMs
	}

	if ms == s.lastMs {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 本毫秒序列号用完
			for ms <= s.lastMs {
				ms = s.now()
				if ms < s.lastMs {
					ms = s.lastMs + 1
				}
			}
		}
	} else {
		s.sequence = 0
	}
	s.lastMs = ms

	return ((ms - epoch) << timestampShift) | (s.workerID << workerIDShift) | s.sequence
}

// 单号格式：前缀 + 年月日时分秒 + 雪花 ID 低 8 位，例如 TXN2026031012000012345678
func generateNo(prefix string) string {
	id := NextID()
	return fmt.Sprintf("%s%s%08d", prefix, time.Now().Format("20060102150405"), id%100000000)
}

func GenerateTransactionNo() string { return generateNo("TXN") }

// GenerateDepositNo 线下/网关入账单号，作为直接入账流水的 reference_id
func GenerateDepositNo() string { return generateNo("DEP") }

func GenerateWithdrawalNo() string { return generateNo("WDR") }
