package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"gorm.io/gorm"

	"github.com/lancepay/lps/internal/config"
	"github.com/lancepay/lps/internal/logger"
	"github.com/lancepay/lps/internal/logic"
	"github.com/lancepay/lps/internal/model"
	"github.com/lancepay/lps/internal/notify"
	"github.com/lancepay/lps/internal/stellar"
)

// FundingMonitor 托管入金监控器
//
// 客户登记入金交易后由这里轮询确认：交易上链且执行成功，
// 托管进入 held。确认是幂等的，同一托管被扫到多次也只迁移一次。
type FundingMonitor struct {
	db          *gorm.DB
	escrowLogic *logic.EscrowLogic
	pool        *ants.Pool // 协程池
	interval    time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewFundingMonitor 创建入金监控器
func NewFundingMonitor(db *gorm.DB, ledger logic.Ledger, cfg *config.Config) *FundingMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	notifier := notify.FromConfig(cfg.Notify)
	waterfallLogic := logic.NewWaterfallLogic(db, ledger, notifier, cfg.Waterfall.Concurrency)
	escrowLogic := logic.NewEscrowLogic(db, ledger, notifier, waterfallLogic, cfg.Escrow.FeeBps)

	concurrency := cfg.Escrow.MonitorConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	pool, err := ants.NewPool(concurrency)
	if err != nil {
		cancel()
		logger.Fatal("Failed to create funding monitor pool: %v", err)
	}

	return &FundingMonitor{
		db:          db,
		escrowLogic: escrowLogic,
		pool:        pool,
		interval:    cfg.Escrow.MonitorInterval,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start 启动监控
func (m *FundingMonitor) Start() {
	logger.Info("Starting escrow funding monitor, interval=%s", m.interval)
	go m.loop()
}

// Stop 停止监控
func (m *FundingMonitor) Stop() {
	logger.Info("Stopping escrow funding monitor")
	m.cancel()
	m.pool.Release()
}

// loop 监控循环
func (m *FundingMonitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			logger.Info("Funding monitor stopped")
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep 扫描一轮待确认的入金交易
func (m *FundingMonitor) sweep() {
	var escrows []model.EscrowContractModel
	err := m.db.Where("status = ? AND fund_tx_hash <> ''", model.EscrowStatusNone).
		Find(&escrows).Error
	if err != nil {
		logger.Error("Failed to fetch escrows awaiting funding: %v", err)
		return
	}
	if len(escrows) == 0 {
		return
	}

	logger.Debug("Checking %d escrows for funding confirmation", len(escrows))

	// 等待本轮全部确认完成再进入下一轮，避免同一托管的确认互相重叠
	var wg sync.WaitGroup
	for _, escrow := range escrows {
		escrowId := escrow.Id
		wg.Add(1)
		err := m.pool.Submit(func() {
			defer wg.Done()
			m.confirm(escrowId)
		})
		if err != nil {
			wg.Done()
			logger.Error("Failed to submit funding confirmation task: %v", err)
		}
	}
	wg.Wait()
}

// confirm 确认单个托管的入金交易
func (m *FundingMonitor) confirm(escrowId int64) {
	err := m.escrowLogic.ConfirmFunding(m.ctx, escrowId)
	if err == nil {
		return
	}
	// 交易还没上链是常态，等下一轮
	if errors.Is(err, stellar.ErrTxNotFound) {
		logger.Debug("Funding tx for escrow %d not on ledger yet", escrowId)
		return
	}
	logger.Warn("Failed to confirm funding for escrow %d: %v", escrowId, err)
}
