package task

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"

	"github.com/lancepay/lps/internal/config"
	"github.com/lancepay/lps/internal/logic"
	"github.com/lancepay/lps/internal/notify"
)

// ReserveCheckJob 资金池水位巡检任务
//
// 注资资金池的余额告警不能只依赖开户时顺带检查，
// 长时间没有开户请求时也要发现水位下降。
type ReserveCheckJob struct {
	fundingLogic *logic.FundingLogic
	interval     time.Duration
}

// NewReserveCheckJob 创建资金池水位巡检任务
func NewReserveCheckJob(db *gorm.DB, ledger logic.Ledger, notifier notify.Notifier, cfg *config.Config) *ReserveCheckJob {
	return &ReserveCheckJob{
		fundingLogic: logic.NewFundingLogic(db, ledger, notifier, cfg.Funding),
		interval:     cfg.Funding.ReserveCheckInterval,
	}
}

// GetName 获取任务名称
func (j *ReserveCheckJob) GetName() string {
	return "funding_reserve_checker"
}

// GetSchedule 获取调度配置
func (j *ReserveCheckJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
//
// 低水位的日志和通知由检查内部发出，这里不重复告警。
func (j *ReserveCheckJob) Execute() {
	j.fundingLogic.CheckReserve(context.Background())
}
