package task

import (
	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"

	"github.com/lancepay/lps/internal/config"
	"github.com/lancepay/lps/internal/logger"
	"github.com/lancepay/lps/internal/logic"
	"github.com/lancepay/lps/internal/notify"
)

// Manager 任务管理器
type Manager struct {
	scheduler gocron.Scheduler
	db        *gorm.DB
	ledger    logic.Ledger
	notifier  notify.Notifier
	config    *config.Config
}

// NewManager 创建新的任务管理器
func NewManager(db *gorm.DB, ledger logic.Ledger, notifier notify.Notifier, cfg *config.Config) *Manager {
	s, err := gocron.NewScheduler()
	if err != nil {
		logger.Fatal("Failed to create scheduler: %v", err)
	}

	return &Manager{
		scheduler: s,
		db:        db,
		ledger:    ledger,
		notifier:  notifier,
		config:    cfg,
	}
}

// Start 启动任务管理器
func Start(db *gorm.DB, ledger logic.Ledger, notifier notify.Notifier, cfg *config.Config) *Manager {
	manager := NewManager(db, ledger, notifier, cfg)

	// 注册所有任务
	manager.RegisterJobs()

	// 启动调度器
	manager.scheduler.Start()

	logger.Info("Task manager started successfully")
	return manager
}

// RegisterJobs 注册所有任务
func (m *Manager) RegisterJobs() {
	// 注册卡住交易救援任务
	m.RegisterRescueSweepJob()
	// 注册资金池水位巡检任务
	m.RegisterReserveCheckJob()
}

// RegisterRescueSweepJob 注册卡住交易救援任务
func (m *Manager) RegisterRescueSweepJob() {
	job := NewRescueSweepJob(m.db, m.ledger, m.config)

	_, err := m.scheduler.NewJob(
		job.GetSchedule(),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.GetName()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		logger.Error("Failed to register job %s: %v", job.GetName(), err)
	}
}

// RegisterReserveCheckJob 注册资金池水位巡检任务
func (m *Manager) RegisterReserveCheckJob() {
	job := NewReserveCheckJob(m.db, m.ledger, m.notifier, m.config)

	_, err := m.scheduler.NewJob(
		job.GetSchedule(),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.GetName()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		logger.Error("Failed to register job %s: %v", job.GetName(), err)
	}
}

// Stop 停止任务管理器
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		logger.Error("Failed to shutdown scheduler: %v", err)
	}
	logger.Info("Task manager stopped")
}
