package logic

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lancepay/lps/internal/feesplit"
	"github.com/lancepay/lps/internal/logger"
	"github.com/lancepay/lps/internal/model"
	"github.com/lancepay/lps/internal/notify"
	"github.com/lancepay/lps/internal/stellar"
)

// WaterfallLogic 协作者分账业务逻辑
//
// 每个分成独立结算：单笔失败不影响其他分成，重跑只补失败的行。
type WaterfallLogic struct {
	db          *gorm.DB
	ledger      Ledger
	notifier    notify.Notifier
	concurrency int
}

// NewWaterfallLogic 创建分账业务逻辑
func NewWaterfallLogic(db *gorm.DB, ledger Ledger, notifier notify.Notifier, concurrency int) *WaterfallLogic {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &WaterfallLogic{
		db:          db,
		ledger:      ledger,
		notifier:    notifier,
		concurrency: concurrency,
	}
}

// PayoutResult 单个分成的结算结果
type PayoutResult struct {
	ShareId int64              `json:"share_id"`
	Email   string             `json:"email"`
	Amount  decimal.Decimal    `json:"amount"`
	Status  model.PayoutStatus `json:"status"`
	TxHash  string             `json:"tx_hash,omitempty"`
	Reason  string             `json:"reason,omitempty"`
}

// ProcessWaterfall 结算发票的全部分成并把余款付给发票所有者
func (l *WaterfallLogic) ProcessWaterfall(ctx context.Context, invoiceId int64) ([]PayoutResult, error) {
	// 1. 发票必须已结清
	var invoice model.InvoiceModel
	if err := l.db.Where("id = ?", invoiceId).First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to query invoice: %w", err)
	}
	if invoice.Status != model.InvoiceStatusPaid {
		return nil, errors.New("发票尚未结清，不能分账")
	}

	// 2. 按当前分成重新计算分配
	var shares []model.CollaboratorShareModel
	if err := l.db.Where("invoice_id = ?", invoiceId).Order("id ASC").Find(&shares).Error; err != nil {
		return nil, fmt.Errorf("failed to query collaborator shares: %w", err)
	}
	wfShares := make([]feesplit.Share, 0, len(shares))
	for _, s := range shares {
		wfShares = append(wfShares, feesplit.Share{Id: s.Id, Email: s.Email, Percentage: s.SharePercentage})
	}
	waterfall, err := feesplit.ComputeWaterfall(invoice.Amount, wfShares)
	if err != nil {
		return nil, err
	}
	amounts := make(map[int64]decimal.Decimal, len(waterfall.Distributions))
	for _, d := range waterfall.Distributions {
		amounts[d.ShareId] = d.Amount
	}

	// 3. 认领待结算的行：pending|failed → processing，带新的幂等令牌
	type claim struct {
		share  model.CollaboratorShareModel
		token  string
		amount decimal.Decimal
	}
	results := make([]PayoutResult, 0, len(shares)+1)
	var claims []claim
	for _, share := range shares {
		amount := amounts[share.Id]
		switch share.PayoutStatus {
		case model.PayoutStatusCompleted:
			// 已结算过，重跑保持不动
			results = append(results, PayoutResult{
				ShareId: share.Id,
				Email:   share.Email,
				Amount:  share.AmountDue,
				Status:  model.PayoutStatusCompleted,
				TxHash:  share.PayoutTxHash,
			})
			continue
		case model.PayoutStatusProcessing:
			results = append(results, PayoutResult{
				ShareId: share.Id,
				Email:   share.Email,
				Amount:  amount,
				Status:  model.PayoutStatusProcessing,
				Reason:  "concurrent_run",
			})
			continue
		}

		token := uuid.NewString()
		claimed := l.db.Model(&model.CollaboratorShareModel{}).
			Where("id = ? AND payout_status IN ?", share.Id, []model.PayoutStatus{model.PayoutStatusPending, model.PayoutStatusFailed}).
			Updates(map[string]interface{}{
				"payout_status":     model.PayoutStatusProcessing,
				"idempotency_token": token,
				"fail_reason":       "",
				"amount_due":        amount,
			})
		if claimed.Error != nil {
			return nil, fmt.Errorf("failed to claim collaborator share: %w", claimed.Error)
		}
		if claimed.RowsAffected == 0 {
			// 并发跑已经认领，跳过
			results = append(results, PayoutResult{
				ShareId: share.Id,
				Email:   share.Email,
				Amount:  amount,
				Status:  model.PayoutStatusProcessing,
				Reason:  "concurrent_run",
			})
			continue
		}
		claims = append(claims, claim{share: share, token: token, amount: amount})
	}

	// 4. 并发结算已认领的行
	if len(claims) > 0 {
		pool, err := ants.NewPool(l.concurrency)
		if err != nil {
			return nil, fmt.Errorf("failed to create payout pool: %w", err)
		}
		defer pool.Release()

		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, c := range claims {
			c := c
			wg.Add(1)
			if err := pool.Submit(func() {
				defer wg.Done()
				r := l.settleShare(ctx, &invoice, c.share, c.token, c.amount)
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			}); err != nil {
				wg.Done()
				mu.Lock()
				results = append(results, l.failShare(c.share, c.amount, "pool_rejected"))
				mu.Unlock()
			}
		}
		wg.Wait()
	}

	// 5. 余款付给所有者
	if waterfall.LeadAmount.IsPositive() {
		results = append(results, l.settleLead(ctx, &invoice, waterfall.LeadAmount))
	} else if waterfall.LeadAmount.IsNegative() {
		logger.Warn("Waterfall for invoice %d has negative lead residual %s, skipping lead payout",
			invoiceId, waterfall.LeadAmount.String())
	}

	return results, nil
}

// settleShare 结算单个协作者分成
func (l *WaterfallLogic) settleShare(ctx context.Context, invoice *model.InvoiceModel, share model.CollaboratorShareModel, token string, amount decimal.Decimal) PayoutResult {
	result := PayoutResult{ShareId: share.Id, Email: share.Email, Amount: amount}

	// 钱包：分成记录上没有就查用户档案
	wallet := share.WalletAddress
	if wallet == "" {
		var user model.UserModel
		if err := l.db.Where("email = ?", share.Email).First(&user).Error; err == nil {
			wallet = user.WalletAddress
		}
	}
	if wallet == "" {
		return l.failShare(share, amount, "missing_wallet")
	}

	stroops, err := feesplit.UnitsToStroops(amount)
	if err != nil || stroops <= 0 {
		return l.failShare(share, amount, "invalid_amount")
	}

	built, err := l.ledger.BuildPayment(ctx, wallet, stroops, sha256.Sum256([]byte(token)))
	if err != nil {
		return l.failShare(share, amount, payoutReason(err, "build_failed"))
	}

	res, err := l.ledger.SubmitXDR(ctx, built.EnvelopeXdr)
	record := &model.PayoutRecordModel{
		InvoiceId:        invoice.Id,
		ShareId:          share.Id,
		RecipientAddress: wallet,
		AmountStroops:    stroops,
		AssetCode:        l.ledger.AssetCode(),
		Kind:             model.PayoutKindCollaborator,
		TxHash:           built.Hash,
		IdempotencyToken: token,
	}
	if err != nil {
		record.Status = model.PayoutRecordStatusFailed
		record.FailReason = payoutReason(err, "submit_failed")
		if cerr := l.db.Create(record).Error; cerr != nil {
			logger.Error("Failed to record payout attempt for share %d: %v", share.Id, cerr)
		}
		return l.failShare(share, amount, record.FailReason)
	}
	record.Status = model.PayoutRecordStatusConfirmed
	if res != nil {
		record.TxHash = res.Hash
	}
	if cerr := l.db.Create(record).Error; cerr != nil {
		logger.Error("Failed to record payout for share %d: %v", share.Id, cerr)
	}

	// 已完成的行不可再改
	update := l.db.Model(&model.CollaboratorShareModel{}).
		Where("id = ? AND payout_status <> ?", share.Id, model.PayoutStatusCompleted).
		Updates(map[string]interface{}{
			"payout_status":  model.PayoutStatusCompleted,
			"payout_tx_hash": record.TxHash,
			"completed_at":   time.Now(),
			"fail_reason":    "",
		})
	if update.Error != nil {
		logger.Error("Failed to complete share %d: %v", share.Id, update.Error)
	}

	result.Status = model.PayoutStatusCompleted
	result.TxHash = record.TxHash
	notify.Dispatch(l.notifier, notify.Event{
		Kind:      notify.KindPayoutCompleted,
		InvoiceId: invoice.Id,
		Recipient: share.Email,
		Payload:   map[string]interface{}{"amount": amount.String(), "tx_hash": record.TxHash},
	})
	logger.Info("Share %d of invoice %d settled: %s to %s", share.Id, invoice.Id, amount.String(), share.Email)
	return result
}

// failShare 把分成标记为失败并返回对应结果
func (l *WaterfallLogic) failShare(share model.CollaboratorShareModel, amount decimal.Decimal, reason string) PayoutResult {
	update := l.db.Model(&model.CollaboratorShareModel{}).
		Where("id = ? AND payout_status <> ?", share.Id, model.PayoutStatusCompleted).
		Updates(map[string]interface{}{
			"payout_status": model.PayoutStatusFailed,
			"fail_reason":   reason,
		})
	if update.Error != nil {
		logger.Error("Failed to mark share %d failed: %v", share.Id, update.Error)
	}
	notify.Dispatch(l.notifier, notify.Event{
		Kind:      notify.KindPayoutFailed,
		InvoiceId: share.InvoiceId,
		Recipient: share.Email,
		Payload:   map[string]interface{}{"reason": reason},
	})
	logger.Warn("Share %d of invoice %d failed to settle: %s", share.Id, share.InvoiceId, reason)
	return PayoutResult{
		ShareId: share.Id,
		Email:   share.Email,
		Amount:  amount,
		Status:  model.PayoutStatusFailed,
		Reason:  reason,
	}
}

// settleLead 把分账余款付给发票所有者
func (l *WaterfallLogic) settleLead(ctx context.Context, invoice *model.InvoiceModel, amount decimal.Decimal) PayoutResult {
	result := PayoutResult{ShareId: 0, Email: invoice.OwnerEmail, Amount: amount}

	// 重跑不重付：已有确认的余款记录直接复用
	var settled model.PayoutRecordModel
	err := l.db.Where("invoice_id = ? AND kind = ? AND status = ?",
		invoice.Id, model.PayoutKindLead, model.PayoutRecordStatusConfirmed).First(&settled).Error
	if err == nil {
		result.Status = model.PayoutStatusCompleted
		result.TxHash = settled.TxHash
		return result
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		result.Status = model.PayoutStatusFailed
		result.Reason = "storage_error"
		return result
	}

	wallet := ""
	var owner model.UserModel
	if qerr := l.db.Where("id = ?", invoice.OwnerId).First(&owner).Error; qerr == nil {
		wallet = owner.WalletAddress
	}
	if wallet == "" {
		result.Status = model.PayoutStatusFailed
		result.Reason = "missing_wallet"
		return result
	}

	stroops, err := feesplit.UnitsToStroops(amount)
	if err != nil || stroops <= 0 {
		result.Status = model.PayoutStatusFailed
		result.Reason = "invalid_amount"
		return result
	}

	token := uuid.NewString()
	built, err := l.ledger.BuildPayment(ctx, wallet, stroops, sha256.Sum256([]byte(token)))
	if err != nil {
		result.Status = model.PayoutStatusFailed
		result.Reason = payoutReason(err, "build_failed")
		return result
	}
	res, err := l.ledger.SubmitXDR(ctx, built.EnvelopeXdr)
	record := &model.PayoutRecordModel{
		InvoiceId:        invoice.Id,
		ShareId:          0,
		RecipientAddress: wallet,
		AmountStroops:    stroops,
		AssetCode:        l.ledger.AssetCode(),
		Kind:             model.PayoutKindLead,
		TxHash:           built.Hash,
		IdempotencyToken: token,
	}
	if err != nil {
		record.Status = model.PayoutRecordStatusFailed
		record.FailReason = payoutReason(err, "submit_failed")
		result.Status = model.PayoutStatusFailed
		result.Reason = record.FailReason
	} else {
		record.Status = model.PayoutRecordStatusConfirmed
		if res != nil {
			record.TxHash = res.Hash
		}
		result.Status = model.PayoutStatusCompleted
		result.TxHash = record.TxHash
	}
	if cerr := l.db.Create(record).Error; cerr != nil {
		logger.Error("Failed to record lead payout for invoice %d: %v", invoice.Id, cerr)
	}
	if result.Status == model.PayoutStatusCompleted {
		logger.Info("Lead residual %s of invoice %d settled to %s", amount.String(), invoice.Id, invoice.OwnerEmail)
	} else {
		logger.Warn("Lead residual of invoice %d failed to settle: %s", invoice.Id, result.Reason)
	}
	return result
}

// payoutReason 提取机器可读的失败原因
func payoutReason(err error, fallback string) string {
	var lerr *stellar.Error
	if errors.As(err, &lerr) && lerr.Reason != "" {
		return lerr.Reason
	}
	return fallback
}
