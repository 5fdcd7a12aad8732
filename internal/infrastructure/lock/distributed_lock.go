package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 调度任务的分布式锁
// ============================================================================
//
// 【为什么调度任务需要锁？】
//
// 服务部署多个实例时，每个实例都有自己的定时器：
//   实例1: 00:00 午夜恢复 -> 把 paused 计划恢复为 active
//   实例2: 00:00 午夜恢复 -> 同一批计划再处理一遍
//
// 状态转换本身带条件（WHERE status = from），重复执行不会出错，
// 但会放大数据库压力、产生重复日志和重复事件。加锁后同一时刻只有一个实例在跑。
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（实例崩溃时锁自动释放）
//   - value: 每次加锁生成的 uuid，释放时校验，防止误删别人的锁
//
// 释放锁：Lua 脚本保证"检查+删除"的原子性
//
// 这不是严格的 leader 选举：锁过期后任务仍在运行时，另一个实例可能同时进入。
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 非阻塞获取锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Unlock 只删除自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	_, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Result()
	return err
}

// JobLocker 按任务名加锁，key 为 scheduler:lock:<job>
type JobLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewJobLocker(client *redis.Client, ttl time.Duration) *JobLocker {
	return &JobLocker{client: client, ttl: ttl}
}

// Acquire 拿到锁返回释放函数；锁被其他实例持有时返回 ErrLockFailed
func (j *JobLocker) Acquire(ctx context.Context, job string) (func(), error) {
	l := NewDistributedLock(j.client, fmt.Sprintf("scheduler:lock:%s", job), uuid.NewString(), j.ttl)
	ok, err := l.TryLock(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockFailed
	}
	return func() {
		// 任务的 ctx 可能已经取消，释放锁用独立的超时
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Unlock(ctx)
	}, nil
}
