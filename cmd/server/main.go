package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adengine/internal/config"
	"adengine/internal/handler"
	"adengine/internal/infrastructure/cache"
	"adengine/internal/infrastructure/database"
	"adengine/internal/infrastructure/lock"
	"adengine/internal/infrastructure/mq"
	"adengine/internal/job"
	"adengine/internal/repository"
	"adengine/internal/repository/memory"
	"adengine/internal/service"
	"adengine/pkg/idgen"
)

// backend 存储实现，mysql 和 memory 二选一
type backend struct {
	stores    service.Stores
	campaigns job.CampaignLister
	outbox    job.OutboxStore
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		logger.Error("初始化 ID 生成器失败", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := openBackend(cfg, logger)
	if err != nil {
		logger.Error("初始化存储失败", slog.Any("error", err))
		os.Exit(1)
	}

	// Redis 可选：调度任务的分布式锁和广告位列表缓存
	var locker job.Locker
	var listing service.ListingCache
	if cfg.Redis.Enabled {
		rdb, err := cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Error("连接 Redis 失败", slog.Any("error", err))
			os.Exit(1)
		}
		defer rdb.Close()
		locker = lock.NewJobLocker(rdb, cfg.Scheduler.LockTTL)
		listing = cache.NewListingCache(rdb)
	} else {
		logger.Warn("未启用 Redis，调度任务不加锁，只能单实例部署")
	}

	campaigns := service.NewCampaignService(b.stores, cfg, logger)
	settlement := service.NewSettlementService(b.stores, campaigns, cfg, logger)
	slots := service.NewSlotAllocator(b.stores.Campaigns, cfg, listing, logger)
	wallets := service.NewWalletService(b.stores, cfg, logger)

	lifecycle := job.NewLifecycle(b.campaigns, campaigns, cfg, logger)
	scheduler := job.NewScheduler(lifecycle, cfg, locker, logger)
	if cfg.Scheduler.Enabled {
		scheduler.Start(ctx)
	}

	// Kafka 可选：outbox 事件投递与充值结果消费
	var sender *job.OutboxSender
	if cfg.Kafka.Enabled {
		producer, err := mq.NewSyncProducer(&cfg.Kafka)
		if err != nil {
			logger.Error("创建 Kafka 生产者失败", slog.Any("error", err))
			os.Exit(1)
		}
		publisher := mq.NewPublisher(producer)
		defer publisher.Close()
		sender = job.NewOutboxSender(b.outbox, publisher, cfg, logger)
		sender.Start(ctx)

		group, err := mq.NewConsumerGroup(&cfg.Kafka)
		if err != nil {
			logger.Error("创建 Kafka 消费者组失败", slog.Any("error", err))
			os.Exit(1)
		}
		consumer := job.NewDepositConsumer(group, cfg.Kafka.Topic.DepositResult, wallets, logger)
		defer consumer.Close()
		go consumer.Start(ctx)
	} else {
		logger.Warn("未启用 Kafka，推广计划事件只写入 outbox，充值结果只能走 HTTP 回调")
	}

	router := handler.SetupRouter(handler.Services{
		Campaigns:  campaigns,
		Settlement: settlement,
		Slots:      slots,
		Wallets:    wallets,
		Scheduler:  scheduler,
	}, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("服务启动", slog.Int("port", cfg.Server.Port), slog.String("storage", cfg.Storage.Driver))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("服务启动失败", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务...")

	// 先停止接收请求，再停后台任务
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务关闭异常", slog.Any("error", err))
	}

	cancel()
	scheduler.Stop()
	if sender != nil {
		// 把已经写入 outbox 的事件尽量发完
		sender.Stop()
		sender.Flush(shutdownCtx)
	}

	logger.Info("服务已关闭")
}

func openBackend(cfg *config.Config, logger *slog.Logger) (*backend, error) {
	if cfg.Storage.Driver == "memory" {
		store := memory.NewStore()
		for _, t := range cfg.Storage.Targets {
			store.Targets().Register(t.Type, t.ID, t.OwnerID)
		}
		logger.Warn("使用内存存储，进程退出后数据丢失", slog.Int("targets", len(cfg.Storage.Targets)))
		return &backend{
			stores: service.Stores{
				Wallets:     store.Wallets(),
				Campaigns:   store.Campaigns(),
				DailySpends: store.DailySpends(),
				Settlement:  store.Settlement(),
				Targets:     store.Targets(),
			},
			campaigns: store.Campaigns(),
			outbox:    store.Outbox(),
		}, nil
	}

	db, err := database.OpenMySQL(&cfg.MySQL, cfg.Log.Level, logger)
	if err != nil {
		return nil, err
	}
	campaignRepo := repository.NewCampaignRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	return &backend{
		stores: service.Stores{
			Wallets:     repository.NewWalletRepository(db),
			Campaigns:   campaignRepo,
			DailySpends: repository.NewDailySpendRepository(db),
			Settlement:  repository.NewSettlementRepository(db),
			Targets:     repository.NewTargetRepository(db),
		},
		campaigns: campaignRepo,
		outbox:    outboxRepo,
	}, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
