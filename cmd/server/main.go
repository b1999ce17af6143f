package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/cache"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/chain"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/config"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/database"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/indexer"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/logger"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/router"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/store"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/task"
	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化日志
	initLogger(cfg.Log)
	defer logger.Sync()

	// 初始化数据库
	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}
	st := store.New(db)

	// 初始化缓存（失败时降级运行，正确性只依赖数据库）
	var c cache.Cache
	redisCache, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, running without cache: %v", err)
	} else {
		c = redisCache
		defer redisCache.Close()
	}

	// 初始化链适配器
	chainClient, err := chain.Init(cfg.Chain)
	if err != nil {
		logger.Fatal("Failed to initialize chain client: %v", err)
	}

	// 启动物化引擎
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var invalidator *cache.Invalidator
	if c != nil {
		invalidator = cache.NewInvalidator(c)
	}
	engine := indexer.New(chainClient, st, invalidator, cfg.Indexer)
	if err := engine.Start(ctx); err != nil {
		if errors.Is(err, indexer.ErrLockNotAcquired) {
			logger.Fatal("Another indexer instance is already processing this stream")
		}
		logger.Fatal("Failed to start materialization engine: %v", err)
	}

	// 启动定时任务
	taskManager := task.Start(st, cfg)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由并启动服务器
	r := router.Setup(st, c, chainClient, engine, cfg)
	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
	}

	taskManager.Stop()
	engine.Stop()
	cancel()
}

// initLogger 按配置切换日志输出
func initLogger(cfg config.LogConfig) {
	level := logger.ParseLogLevel(cfg.Level)

	if cfg.Output == "file" && cfg.File != "" {
		fileLogger, err := logger.NewWithFileRotation(level, cfg.File)
		if err != nil {
			logger.Warn("Failed to initialize file logger, falling back to stdout: %v", err)
			return
		}
		logger.SetDefaultLogger(fileLogger)
		return
	}

	stdLogger, err := logger.New(level)
	if err != nil {
		logger.Warn("Failed to initialize logger: %v", err)
		return
	}
	logger.SetDefaultLogger(stdLogger)
}
