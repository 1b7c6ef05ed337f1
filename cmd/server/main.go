// BusPlan 公交排班服务
// 主程序入口

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paiban/busplan/internal/cache"
	"github.com/paiban/busplan/internal/config"
	"github.com/paiban/busplan/internal/database"
	"github.com/paiban/busplan/internal/handler"
	"github.com/paiban/busplan/internal/metrics"
	"github.com/paiban/busplan/internal/middleware"
	"github.com/paiban/busplan/internal/repository"
	"github.com/paiban/busplan/internal/service"
	"github.com/paiban/busplan/pkg/logger"
	"github.com/paiban/busplan/pkg/scorer"
	"github.com/paiban/busplan/pkg/stats"
	conflict "github.com/paiban/busplan/pkg/validator"
)

// 构建信息（通过 ldflags 注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Format: cfg.App.LogFormat,
	})

	fmt.Printf("BusPlan 公交排班服务 v%s\n", Version)
	fmt.Printf("Build: %s (%s)\n", BuildTime, GitCommit)
	fmt.Println()

	ctx := context.Background()

	store, storeCloser, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("初始化数据存储失败")
	}
	defer storeCloser.Close()

	planningCache, cacheCloser := openCache(ctx, cfg)
	defer cacheCloser.Close()

	reg := metrics.GetRegistry()
	plannerLog := logger.NewPlannerLogger()

	scorerOpts := []scorer.Option{
		scorer.WithRangeBuffer(cfg.Planner.RangeBufferPercent),
		scorer.WithLogger(plannerLog),
	}
	if cfg.Planner.Jitter {
		seed := cfg.Planner.JitterSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		scorerOpts = append(scorerOpts, scorer.WithSeed(seed))
	}

	svc := service.NewPlanningService(store, service.Options{
		Detector: &conflict.DetectorConfig{
			CheckWeeklyHours: cfg.Planner.CheckWeeklyHours,
			ShiftHours:       cfg.Planner.ShiftHours,
		},
		Scorer: scorerOpts,
		Planning: []stats.PlanningOption{
			stats.WithWeeks(cfg.Planner.WeeksBefore, cfg.Planner.Weeks),
			stats.WithPlannerLogger(plannerLog),
		},
		ShiftHours: cfg.Planner.ShiftHours,
		Cache:      planningCache,
		Metrics:    reg,
		Logger:     plannerLog,
	})

	limiter := middleware.NewRateLimiter(cfg.API.RateLimit, time.Minute)
	if limiter != nil {
		defer limiter.Stop()
	}

	opts := handler.RouterOptions{
		Build:   handler.BuildInfo{Version: Version, BuildTime: BuildTime, GitCommit: GitCommit},
		Metrics: reg,
		Limiter: limiter,
		Timeout: cfg.API.Timeout,
	}
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
	}
	if cfg.API.CORS.Enabled {
		opts.CORSOrigins = cfg.API.CORS.Origins
	}

	port := fmt.Sprintf("%d", cfg.App.Port)
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      handler.NewRouter(svc, opts),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 启动服务器（非阻塞）
	go func() {
		logger.Info().
			Str("port", port).
			Str("version", Version).
			Str("env", cfg.App.Env).
			Str("store", cfg.Store.Driver).
			Bool("cache", planningCache.Enabled()).
			Str("url", fmt.Sprintf("http://localhost:%s", port)).
			Msg("服务器启动")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("服务器启动失败")
			os.Exit(1)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("正在关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
		return
	}

	logger.Info().Msg("服务器已关闭")
}

// nopCloser 无需关闭的资源
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore 按配置创建数据存储
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, io.Closer, error) {
	if cfg.Store.Driver != config.StorePostgres {
		logger.Info().Msg("使用内存存储，数据不会持久化")
		return repository.NewMemoryStore(), nopCloser{}, nil
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Store.Migrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return repository.NewPostgresStore(db), db, nil
}

// openCache 按配置连接 Redis，连接失败时降级为不缓存
func openCache(ctx context.Context, cfg *config.Config) (*cache.PlanningCache, io.Closer) {
	if !cfg.Redis.Enabled {
		return nil, nopCloser{}
	}

	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Addr()).Msg("Redis 不可用，规划进度不缓存")
		return nil, nopCloser{}
	}
	return cache.NewPlanningCache(client, cfg.Redis.TTL), client
}
