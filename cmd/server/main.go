package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lancepay/lps/internal/cache"
	"github.com/lancepay/lps/internal/config"
	"github.com/lancepay/lps/internal/logger"
	"github.com/lancepay/lps/internal/monitor"
	"github.com/lancepay/lps/internal/notify"
	"github.com/lancepay/lps/internal/repository"
	"github.com/lancepay/lps/internal/router"
	"github.com/lancepay/lps/internal/stellar"
	"github.com/lancepay/lps/internal/task"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化日志
	l, err := logger.NewWithRotation(logger.ParseLogLevel(cfg.Log.Level), logger.RotationConfig{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.SetDefaultLogger(l)

	// 初始化数据库
	db, err := repository.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// 初始化 Stellar 客户端
	feeCache := cache.NewTTL(cfg.Stellar.BaseFeeTTL)
	ledger, err := stellar.Init(cfg.Stellar, feeCache)
	if err != nil {
		logger.Fatal("Failed to initialize stellar client: %v", err)
	}

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(db, ledger, cfg)

	// 启动定时任务
	notifier := notify.FromConfig(cfg.Notify)
	taskManager := task.Start(db, ledger, notifier, cfg)

	// 启动入金监控
	fundingMonitor := monitor.NewFundingMonitor(db, ledger, cfg)
	fundingMonitor.Start()

	// 启动服务器
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}
	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// 等待退出信号后按序关停：先停后台任务，再停 HTTP 服务
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	fundingMonitor.Stop()
	taskManager.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
	}
	logger.Sync()
}
