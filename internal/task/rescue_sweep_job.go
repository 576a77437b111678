package task

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"

	"github.com/lancepay/lps/internal/config"
	"github.com/lancepay/lps/internal/logger"
	"github.com/lancepay/lps/internal/logic"
)

// RescueSweepJob 卡住交易救援任务
//
// 周期扫描跟踪表，已上链的交易落确认，超时未确认的做费用置换。
type RescueSweepJob struct {
	rescueLogic *logic.RescueLogic
	interval    time.Duration
}

// NewRescueSweepJob 创建卡住交易救援任务
func NewRescueSweepJob(db *gorm.DB, ledger logic.Ledger, cfg *config.Config) *RescueSweepJob {
	return &RescueSweepJob{
		rescueLogic: logic.NewRescueLogic(db, ledger, cfg.Rescue),
		interval:    cfg.Rescue.SweepInterval,
	}
}

// GetName 获取任务名称
func (j *RescueSweepJob) GetName() string {
	return "tx_rescue_sweeper"
}

// GetSchedule 获取调度配置
func (j *RescueSweepJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *RescueSweepJob) Execute() {
	rescued, err := j.rescueLogic.SweepStuck(context.Background())
	if err != nil {
		logger.Error("Rescue sweep failed: %v", err)
		return
	}
	if rescued > 0 {
		logger.Info("Rescue sweep completed. Rescued %d transactions", rescued)
	}
}
