package logic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/lancepay/lps/internal/config"
	"github.com/lancepay/lps/internal/logger"
	"github.com/lancepay/lps/internal/model"
	"github.com/lancepay/lps/internal/stellar"
)

// RescueLogic 交易救援业务逻辑
//
// 对长时间未确认的交易做费用置换（fee bump）。每次调用只尝试一次，
// 不做重试循环，避免同一笔交易被反复加价。
type RescueLogic struct {
	db     *gorm.DB
	ledger Ledger
	cfg    config.RescueConfig
}

// NewRescueLogic 创建交易救援业务逻辑
func NewRescueLogic(db *gorm.DB, ledger Ledger, cfg config.RescueConfig) *RescueLogic {
	return &RescueLogic{db: db, ledger: ledger, cfg: cfg}
}

// RescueOutcome 救援结果
type RescueOutcome struct {
	OriginalHash string `json:"original_hash"`
	NewHash      string `json:"new_hash"`
	MaxFeePerOp  int64  `json:"max_fee_per_op"` // 实际使用的单操作费上限（stroop）
}

// Rescue 用费用置换交易顶替一笔卡住的交易
//
// maxFeeStroops 是调用方愿意出的单操作费上限，低于动态下限时按下限执行。
func (l *RescueLogic) Rescue(ctx context.Context, innerEnvelopeXdr string, maxFeeStroops int64) (*RescueOutcome, error) {
	if innerEnvelopeXdr == "" {
		return nil, errors.New("交易内容不能为空")
	}

	innerHash, err := l.ledger.InnerTxHash(innerEnvelopeXdr)
	if err != nil {
		return nil, err
	}

	// 1. 可能只是确认得慢，先查一遍
	tx, err := l.ledger.Transaction(ctx, innerHash)
	if err == nil {
		l.markSettled(innerHash, tx)
		return nil, errors.New("交易已上链，无需救援")
	}
	if !errors.Is(err, stellar.ErrTxNotFound) {
		logger.Warn("Failed to check transaction %s before rescue: %v", innerHash, err)
	}

	// 2. 费用下限：基础费 × 配置倍数
	baseFee, err := l.ledger.BaseFee(ctx)
	if err != nil || baseFee <= 0 {
		baseFee = stellar.MinBaseFee
	}
	multiplier := l.cfg.MaxFeeMultiplier
	if multiplier <= 0 {
		multiplier = 10
	}
	maxFee := maxFeeStroops
	if floor := baseFee * multiplier; maxFee < floor {
		maxFee = floor
	}

	// 3. 只尝试一次
	built, err := l.ledger.BuildFeeBump(innerEnvelopeXdr, maxFee)
	if err != nil {
		return nil, err
	}
	res, err := l.ledger.SubmitXDR(ctx, built.EnvelopeXdr)
	recordLedgerTx(l.db, built, model.LedgerTxKindFeeBump, res, err)
	if err != nil {
		return nil, fmt.Errorf("failed to submit fee bump transaction: %w", err)
	}

	// 4. 登记置换关系
	linked := l.db.Model(&model.LedgerTxModel{}).
		Where("hash = ?", innerHash).
		Updates(map[string]interface{}{
			"status":           model.LedgerTxStatusReplaced,
			"replaced_by_hash": built.Hash,
		})
	if linked.Error != nil {
		logger.Error("Failed to link rescued transaction %s: %v", innerHash, linked.Error)
	} else if linked.RowsAffected == 0 {
		// 不是本服务提交的交易，补一条登记
		record := &model.LedgerTxModel{
			Hash:           innerHash,
			EnvelopeXdr:    innerEnvelopeXdr,
			Kind:           model.LedgerTxKindExternal,
			Status:         model.LedgerTxStatusReplaced,
			ReplacedByHash: built.Hash,
		}
		if err := l.db.Create(record).Error; err != nil {
			logger.Error("Failed to record rescued transaction %s: %v", innerHash, err)
		}
	}

	logger.Info("Transaction %s rescued by %s: max_fee=%d stroops", innerHash, built.Hash, maxFee)
	return &RescueOutcome{OriginalHash: innerHash, NewHash: built.Hash, MaxFeePerOp: maxFee}, nil
}

// SweepStuck 扫描卡住的交易：能确认的确认，确认不了的救援一次
func (l *RescueLogic) SweepStuck(ctx context.Context) (int, error) {
	batch := l.cfg.BatchSize
	if batch <= 0 {
		batch = 20
	}
	cutoff := time.Now().Add(-l.cfg.StuckAfter)

	var rows []model.LedgerTxModel
	if err := l.db.
		Where("status = ? AND kind <> ? AND updated_at < ?",
			model.LedgerTxStatusSubmitted, model.LedgerTxKindFeeBump, cutoff).
		Order("id ASC").Limit(batch).Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("failed to query stuck transactions: %w", err)
	}

	rescued := 0
	for _, row := range rows {
		select {
		case <-ctx.Done():
			return rescued, ctx.Err()
		default:
		}

		tx, err := l.ledger.Transaction(ctx, row.Hash)
		if err == nil {
			l.markSettled(row.Hash, tx)
			continue
		}
		if !errors.Is(err, stellar.ErrTxNotFound) {
			logger.Warn("Failed to check stuck transaction %s: %v", row.Hash, err)
			continue
		}

		if _, err := l.Rescue(ctx, row.EnvelopeXdr, 0); err != nil {
			logger.Warn("Failed to rescue transaction %s: %v", row.Hash, err)
			if uerr := l.db.Model(&model.LedgerTxModel{}).Where("id = ?", row.Id).
				UpdateColumn("submit_attempts", gorm.Expr("submit_attempts + 1")).Error; uerr != nil {
				logger.Error("Failed to bump attempts for transaction %s: %v", row.Hash, uerr)
			}
			continue
		}
		rescued++
	}
	return rescued, nil
}

// markSettled 按链上结果收敛跟踪记录
func (l *RescueLogic) markSettled(hash string, tx *stellar.TxStatus) {
	status := model.LedgerTxStatusConfirmed
	if !tx.Successful {
		status = model.LedgerTxStatusFailed
	}
	if err := l.db.Model(&model.LedgerTxModel{}).Where("hash = ?", hash).
		Updates(map[string]interface{}{
			"status":      status,
			"fee_charged": tx.FeeCharged,
		}).Error; err != nil {
		logger.Error("Failed to settle transaction %s: %v", hash, err)
	}
}
