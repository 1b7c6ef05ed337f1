// Package database 提供数据库连接和管理
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/paiban/busplan/internal/config"
	"github.com/paiban/busplan/pkg/logger"

	_ "github.com/lib/pq" // PostgreSQL 驱动
)

// slowQueryThreshold 慢查询阈值
const slowQueryThreshold = 100 * time.Millisecond

// DB 数据库连接封装，查询方法会记录慢SQL
type DB struct {
	*sqlx.DB
	cfg *config.DatabaseConfig
}

// New 创建新的数据库连接
func New(cfg *config.DatabaseConfig) (*DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("打开数据库连接失败: %w", err)
	}

	// 配置连接池
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Msg("数据库连接成功")

	return &DB{DB: db, cfg: cfg}, nil
}

// Wrap 包装已有连接（测试中传入 sqlmock 连接）
func Wrap(db *sqlx.DB) *DB {
	return &DB{DB: db}
}

// Close 关闭数据库连接
func (db *DB) Close() error {
	if db.DB != nil {
		logger.Info().Msg("关闭数据库连接")
		return db.DB.Close()
	}
	return nil
}

// Health 健康检查
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

// ExecContext 执行SQL语句
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	defer logSlow(query, time.Now())
	return db.DB.ExecContext(ctx, query, args...)
}

// GetContext 查询单行到结构体
func (db *DB) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	defer logSlow(query, time.Now())
	return db.DB.GetContext(ctx, dest, query, args...)
}

// SelectContext 查询多行到切片
func (db *DB) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	defer logSlow(query, time.Now())
	return db.DB.SelectContext(ctx, dest, query, args...)
}

// Migrate 创建表结构（幂等）
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("初始化表结构失败: %w", err)
	}
	logger.Info().Msg("数据库表结构已就绪")
	return nil
}

// logSlow 记录慢SQL查询
func logSlow(query string, start time.Time) {
	duration := time.Since(start)
	if duration > slowQueryThreshold {
		logger.Warn().
			Str("query", truncateQuery(query)).
			Dur("duration", duration).
			Msg("慢SQL查询")
	}
}

// truncateQuery 截断长查询
func truncateQuery(query string) string {
	if len(query) > 200 {
		return query[:200] + "..."
	}
	return query
}

// Schema 表结构；删除线路/车辆/司机时级联删除排班
const Schema = `
CREATE TABLE IF NOT EXISTS lines (
	id               UUID PRIMARY KEY,
	line_number      TEXT NOT NULL UNIQUE,
	route_name       TEXT NOT NULL DEFAULT '',
	distance_km      DOUBLE PRECISION NOT NULL DEFAULT 0,
	duration_minutes INTEGER NOT NULL DEFAULT 0,
	compatible_sizes TEXT[] NOT NULL DEFAULT '{}',
	schedule         JSONB NOT NULL DEFAULT '{}',
	is_active        BOOLEAN NOT NULL DEFAULT TRUE,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS buses (
	id                UUID PRIMARY KEY,
	license_plate     TEXT NOT NULL UNIQUE,
	size              TEXT NOT NULL,
	propulsion        TEXT NOT NULL,
	max_range_km      DOUBLE PRECISION,
	unavailable_dates DATE[] NOT NULL DEFAULT '{}',
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS drivers (
	id                UUID PRIMARY KEY,
	full_name         TEXT NOT NULL,
	weekly_hours      INTEGER NOT NULL DEFAULT 0,
	available_days    INTEGER[] NOT NULL DEFAULT '{}',
	preferred_shifts  TEXT[] NOT NULL DEFAULT '{}',
	avoid_shifts      TEXT[] NOT NULL DEFAULT '{}',
	unavailable_dates DATE[] NOT NULL DEFAULT '{}',
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS assignments (
	id         UUID PRIMARY KEY,
	date       DATE NOT NULL,
	shift      TEXT NOT NULL,
	line_id    UUID NOT NULL REFERENCES lines(id) ON DELETE CASCADE,
	bus_id     UUID NOT NULL REFERENCES buses(id) ON DELETE CASCADE,
	driver_id  UUID NOT NULL REFERENCES drivers(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assignments_date_shift ON assignments (date, shift);
`
