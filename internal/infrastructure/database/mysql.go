package database

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"adengine/internal/config"
	"adengine/internal/model"

	driver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 慢查询阈值，结算事务超过这个时间要查锁等待
const slowQuery = 200 * time.Millisecond

// DSN 金额和时间都按 UTC 读写，日桶的时区换算只在服务层做
func DSN(cfg *config.MySQLConfig) string {
	c := driver.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c.DBName = cfg.Database
	c.ParseTime = true
	c.Loc = time.UTC
	c.Timeout = 5 * time.Second
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c.FormatDSN()
}

// OpenMySQL 连接 MySQL 并迁移本服务的表
// stores / coupons / deals 属于目录服务，这里只读不迁移
func OpenMySQL(cfg *config.MySQLConfig, logLevel string, log *slog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(DSN(cfg)), &gorm.Config{
		Logger: logger.New(slogWriter{log}, logger.Config{
			SlowThreshold:             slowQuery,
			LogLevel:                  gormLogLevel(logLevel),
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 DB 失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&model.Wallet{},
		&model.Transaction{},
		&model.Campaign{},
		&model.DailySpend{},
		&model.OutboxMessage{},
	); err != nil {
		return nil, fmt.Errorf("自动迁移表结构失败: %w", err)
	}

	log.Info("MySQL 连接成功", slog.String("addr", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))), slog.String("database", cfg.Database))
	return db, nil
}

// gormLogLevel debug 时打印全部 SQL，其余只打慢查询和错误
func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "error":
		return logger.Error
	default:
		return logger.Warn
	}
}

// slogWriter 把 gorm 的日志转到 slog
type slogWriter struct {
	log *slog.Logger
}

func (w slogWriter) Printf(format string, args ...interface{}) {
	w.log.Info(fmt.Sprintf(format, args...), slog.String("component", "gorm"))
}
