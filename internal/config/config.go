package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // 精简镜像里没有系统时区数据

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"adengine/internal/model"
)

// Config 全局配置结构
type Config struct {
	Server    ServerConfig          `mapstructure:"server"`
	Storage   StorageConfig         `mapstructure:"storage"`
	MySQL     MySQLConfig           `mapstructure:"mysql"`
	Redis     RedisConfig           `mapstructure:"redis"`
	Kafka     KafkaConfig           `mapstructure:"kafka"`
	Log       LogConfig             `mapstructure:"log"`
	Business  BusinessConfig        `mapstructure:"business"`
	Slots     map[string]SlotConfig `mapstructure:"slots"`
	Scheduler SchedulerConfig       `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port     int   `mapstructure:"port"`
	WorkerID int64 `mapstructure:"worker_id"`
}

// StorageConfig driver 为 mysql 或 memory；memory 仅用于本地演示
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	// Targets memory 模式下没有店铺/优惠券目录，用这里的配置代替
	Targets []TargetSeed `mapstructure:"targets"`
}

type TargetSeed struct {
	Type    string `mapstructure:"type"`
	ID      int64  `mapstructure:"id"`
	OwnerID int64  `mapstructure:"owner_id"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	GroupID string           `mapstructure:"group_id"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	CampaignEvents string `mapstructure:"campaign_events"`
	DepositResult  string `mapstructure:"deposit_result"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BusinessConfig struct {
	Timezone            string          `mapstructure:"timezone"`
	SecondPriceFactor   float64         `mapstructure:"second_price_factor"`
	MinAvailableBalance float64         `mapstructure:"min_available_balance"`
	MaxRetryCount       int             `mapstructure:"max_retry_count"`
	Priority            PriorityWeights `mapstructure:"priority"`
}

// PriorityWeights 优先级打分权重
//
//	light: bid*BidLight + performance*PerformanceLight
//	full : bid*Bid + performance*Performance + budgetHealth*BudgetHealth
type PriorityWeights struct {
	BidLight         float64 `mapstructure:"bid_light"`
	PerformanceLight float64 `mapstructure:"performance_light"`
	Bid              float64 `mapstructure:"bid"`
	Performance      float64 `mapstructure:"performance"`
	BudgetHealth     float64 `mapstructure:"budget_health"`
	CTRFactor        float64 `mapstructure:"ctr_factor"`
	ConversionFactor float64 `mapstructure:"conversion_factor"`
}

// SlotConfig 每种推广类型的广告位配置
type SlotConfig struct {
	Homepage    int     `mapstructure:"homepage"`
	Category    int     `mapstructure:"category"`
	Search      int     `mapstructure:"search"`
	MaxActive   int     `mapstructure:"max_active"`
	MinDailyBid float64 `mapstructure:"min_daily_bid"`
}

// SlotCount 指定位置的广告位数量，未指定位置时按首页计算
func (s SlotConfig) SlotCount(placement string) int {
	switch placement {
	case model.PlacementCategory:
		return s.Category
	case model.PlacementSearch:
		return s.Search
	default:
		return s.Homepage
	}
}

func (s SlotConfig) MinBid() decimal.Decimal {
	return decimal.NewFromFloat(s.MinDailyBid)
}

type SchedulerConfig struct {
	Enabled                bool          `mapstructure:"enabled"`
	PriorityRefreshEvery   time.Duration `mapstructure:"priority_refresh_every"`
	DraftActivationEvery   time.Duration `mapstructure:"draft_activation_every"`
	DailyBudgetCheckEvery  time.Duration `mapstructure:"daily_budget_check_every"`
	OutboxFlushEvery       time.Duration `mapstructure:"outbox_flush_every"`
	BatchSize              int           `mapstructure:"batch_size"`
	LockTTL                time.Duration `mapstructure:"lock_ttl"`
	SlotCacheTTL           time.Duration `mapstructure:"slot_cache_ttl"`
	MidnightResetOffsetSec int           `mapstructure:"midnight_reset_offset_sec"`
}

// Location 业务时区，日预算按这个时区切日
func (b BusinessConfig) Location() *time.Location {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (b BusinessConfig) MinAvailable() decimal.Decimal {
	return decimal.NewFromFloat(b.MinAvailableBalance)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_id", 1)
	v.SetDefault("storage.driver", "mysql")
	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.database", "adengine")
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.group_id", "adengine")
	v.SetDefault("kafka.topic.campaign_events", "campaign_events")
	v.SetDefault("kafka.topic.deposit_result", "deposit_result")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("business.timezone", "UTC")
	v.SetDefault("business.second_price_factor", 0.8)
	v.SetDefault("business.min_available_balance", 1)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.priority.bid_light", 0.7)
	v.SetDefault("business.priority.performance_light", 0.3)
	v.SetDefault("business.priority.bid", 0.5)
	v.SetDefault("business.priority.performance", 0.3)
	v.SetDefault("business.priority.budget_health", 0.2)
	v.SetDefault("business.priority.ctr_factor", 50)
	v.SetDefault("business.priority.conversion_factor", 10)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.priority_refresh_every", time.Hour)
	v.SetDefault("scheduler.draft_activation_every", 15*time.Minute)
	v.SetDefault("scheduler.daily_budget_check_every", time.Hour)
	v.SetDefault("scheduler.outbox_flush_every", 500*time.Millisecond)
	v.SetDefault("scheduler.batch_size", 200)
	v.SetDefault("scheduler.lock_ttl", 10*time.Minute)
	v.SetDefault("scheduler.slot_cache_ttl", 30*time.Second)
}

// DefaultSlots 未配置 slots 时使用的广告位
func DefaultSlots() map[string]SlotConfig {
	return map[string]SlotConfig{
		model.CampaignTypeStore:  {Homepage: 6, Category: 4, Search: 3, MaxActive: 50, MinDailyBid: 0.5},
		model.CampaignTypeCoupon: {Homepage: 8, Category: 6, Search: 4, MaxActive: 100, MinDailyBid: 0.1},
		model.CampaignTypeDeal:   {Homepage: 8, Category: 6, Search: 4, MaxActive: 100, MinDailyBid: 0.1},
	}
}

// LoadConfig 加载配置文件，环境变量 ADENGINE_<SECTION>_<KEY> 可覆盖文件中的值
// configPath 为空时只使用默认值和环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("ADENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if len(cfg.Slots) == 0 {
		cfg.Slots = DefaultSlots()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置的业务约束
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "mysql", "memory":
	default:
		return fmt.Errorf("不支持的 storage.driver: %q", c.Storage.Driver)
	}
	if c.Business.SecondPriceFactor <= 0 || c.Business.SecondPriceFactor > 1 {
		return errors.New("business.second_price_factor 必须在 (0, 1] 之间")
	}
	if _, err := time.LoadLocation(c.Business.Timezone); err != nil {
		return fmt.Errorf("business.timezone 无效: %w", err)
	}
	for _, t := range model.CampaignTypes {
		slot, ok := c.Slots[t]
		if !ok {
			return fmt.Errorf("缺少推广类型 %s 的 slots 配置", t)
		}
		if slot.Homepage <= 0 || slot.MaxActive <= 0 {
			return fmt.Errorf("slots.%s 的 homepage 与 max_active 必须大于0", t)
		}
	}
	for i, t := range c.Storage.Targets {
		if _, ok := c.Slots[t.Type]; !ok || t.ID <= 0 || t.OwnerID <= 0 {
			return fmt.Errorf("storage.targets[%d] 配置无效", i)
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.enabled 为 true 时必须配置 kafka.brokers")
	}
	return nil
}
