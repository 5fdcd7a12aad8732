package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"adengine/internal/config"
	"adengine/internal/infrastructure/lock"
)

const (
	JobPriorityRefresh  = "priority_refresh"
	JobDraftActivation  = "draft_activation"
	JobDailyBudgetCheck = "daily_budget_check"
	JobMidnightReset    = "midnight_reset"
)

var (
	ErrUnknownJob = errors.New("未知的调度任务")
	ErrJobBusy    = errors.New("调度任务正在其他实例上执行")
)

// Locker 多实例部署时保证同一任务同一时刻只在一个实例上执行
type Locker interface {
	Acquire(ctx context.Context, job string) (func(), error)
}

type task struct {
	name  string
	every time.Duration // 为 0 表示每天在业务时区零点之后执行
	run   func(ctx context.Context) (Report, error)
}

// Scheduler 四个生命周期任务各自一个定时器，互不阻塞
type Scheduler struct {
	tasks    map[string]task
	order    []string
	locker   Locker
	loc      *time.Location
	offset   time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler locker 为 nil 时不加锁（单实例部署）
func NewScheduler(lifecycle *Lifecycle, cfg *config.Config, locker Locker, logger *slog.Logger) *Scheduler {
	s := &Scheduler{
		tasks:  make(map[string]task),
		locker: locker,
		loc:    cfg.Business.Location(),
		offset: time.Duration(cfg.Scheduler.MidnightResetOffsetSec) * time.Second,
		logger: logger.With(slog.String("component", "scheduler")),
		stopCh: make(chan struct{}),
	}
	s.add(task{name: JobPriorityRefresh, every: cfg.Scheduler.PriorityRefreshEvery, run: lifecycle.RunPriorityRefresh})
	s.add(task{name: JobDraftActivation, every: cfg.Scheduler.DraftActivationEvery, run: lifecycle.RunDraftActivation})
	s.add(task{name: JobDailyBudgetCheck, every: cfg.Scheduler.DailyBudgetCheckEvery, run: lifecycle.RunDailyBudgetCheck})
	s.add(task{name: JobMidnightReset, run: lifecycle.RunMidnightReset})
	return s
}

func (s *Scheduler) add(t task) {
	s.tasks[t.name] = t
	s.order = append(s.order, t.name)
}

func (s *Scheduler) Jobs() []string {
	return append([]string(nil), s.order...)
}

func (s *Scheduler) Start(ctx context.Context) {
	for _, name := range s.order {
		t := s.tasks[name]
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, t)
		}()
	}
	s.logger.Info("调度任务启动", slog.Any("jobs", s.order))
}

// Stop 关闭所有定时器并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Trigger 手动执行一次，同样受分布式锁保护
func (s *Scheduler) Trigger(ctx context.Context, name string) (Report, error) {
	t, ok := s.tasks[name]
	if !ok {
		return Report{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, t)
}

func (s *Scheduler) loop(ctx context.Context, t task) {
	logger := s.logger.With(slog.String("job", t.name))
	for {
		wait := t.every
		if wait <= 0 {
			now := time.Now()
			wait = NextMidnight(now, s.loc, s.offset).Sub(now)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			timer.Stop()
			logger.Info("任务停止")
			return
		case <-timer.C:
			if _, err := s.execute(ctx, t); err != nil && !errors.Is(err, ErrJobBusy) {
				logger.Error("任务执行失败", slog.Any("error", err))
			}
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, t task) (Report, error) {
	logger := s.logger.With(slog.String("job", t.name))
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, t.name)
		if err != nil {
			if errors.Is(err, lock.ErrLockFailed) {
				logger.Info("其他实例正在执行，本次跳过")
				return Report{}, ErrJobBusy
			}
			return Report{}, fmt.Errorf("获取任务锁失败: %w", err)
		}
		defer release()
	}

	start := time.Now()
	rep, err := t.run(ctx)
	if err != nil {
		return rep, err
	}
	logger.Info("任务执行完成", append(rep.attrs(), slog.Duration("elapsed", time.Since(start)))...)
	return rep, nil
}

// NextMidnight now 之后业务时区的下一个零点再加上 offset
func NextMidnight(now time.Time, loc *time.Location, offset time.Duration) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).Add(offset)
	for !next.After(local) {
		next = time.Date(next.Year(), next.Month(), next.Day()+1, 0, 0, 0, 0, loc).Add(offset)
	}
	return next
}
