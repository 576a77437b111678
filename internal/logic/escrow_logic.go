package logic

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/lancepay/lps/internal/feesplit"
	"github.com/lancepay/lps/internal/logger"
	"github.com/lancepay/lps/internal/model"
	"github.com/lancepay/lps/internal/notify"
	"github.com/lancepay/lps/internal/stellar"
)

// EscrowLogic 托管结算业务逻辑
type EscrowLogic struct {
	db        *gorm.DB
	ledger    Ledger
	notifier  notify.Notifier
	waterfall *WaterfallLogic
	feeBps    int64
}

// NewEscrowLogic 创建托管结算业务逻辑
func NewEscrowLogic(db *gorm.DB, ledger Ledger, notifier notify.Notifier, waterfall *WaterfallLogic, feeBps int64) *EscrowLogic {
	return &EscrowLogic{
		db:        db,
		ledger:    ledger,
		notifier:  notifier,
		waterfall: waterfall,
		feeBps:    feeBps,
	}
}

// EnableEscrow 为发票开启托管：部署并初始化托管合约
//
// 同一发票重复开启是幂等的，直接返回已有的托管记录。
func (l *EscrowLogic) EnableEscrow(ctx context.Context, invoiceId int64) (*model.EscrowContractModel, error) {
	// 1. 验证发票
	var invoice model.InvoiceModel
	if err := l.db.Where("id = ?", invoiceId).First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to query invoice: %w", err)
	}
	if invoice.Status != model.InvoiceStatusUnpaid {
		return nil, errors.New("发票已结清，无需托管")
	}

	// 2. 已有托管记录直接返回
	var existing model.EscrowContractModel
	err := l.db.Where("invoice_id = ?", invoiceId).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query escrow contract: %w", err)
	}

	// 3. 金额换算
	amountStroops, err := feesplit.UnitsToStroops(invoice.Amount)
	if err != nil {
		return nil, errors.New("发票金额精度无效")
	}
	if amountStroops <= 0 {
		return nil, errors.New("发票金额必须大于零")
	}

	// 4. 确定链上参与方：自由职业者绑定了钱包就用钱包，否则由平台代管
	freelancerAddress := l.ledger.PlatformAddress()
	var owner model.UserModel
	if err := l.db.Where("id = ?", invoice.OwnerId).First(&owner).Error; err == nil && owner.WalletAddress != "" {
		freelancerAddress = owner.WalletAddress
	}

	contractId, err := l.ledger.EscrowContractID(invoiceId)
	if err != nil {
		return nil, fmt.Errorf("failed to derive escrow contract id: %w", err)
	}

	// 5. 部署合约（同盐重放会撞已有合约，视为已部署）
	deployTx, err := l.ledger.BuildEscrowDeploy(ctx, invoiceId)
	if err != nil {
		return nil, fmt.Errorf("failed to build escrow deploy transaction: %w", err)
	}
	deployRes, err := l.ledger.SubmitXDR(ctx, deployTx.EnvelopeXdr)
	recordLedgerTx(l.db, deployTx, model.LedgerTxKindEscrowDeploy, deployRes, err)
	if err != nil {
		if stellar.ClassOf(err) != stellar.ClassConflict {
			return nil, fmt.Errorf("failed to submit escrow deploy transaction: %w", err)
		}
		logger.Info("Escrow contract for invoice %d already deployed", invoiceId)
	}

	// 6. 初始化合约
	initTx, err := l.ledger.BuildEscrowInit(ctx, contractId, stellar.EscrowInit{
		ClientAddress:     l.ledger.PlatformAddress(),
		FreelancerAddress: freelancerAddress,
		ArbiterAddress:    l.ledger.ArbiterAddress(),
		AmountStroops:     amountStroops,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build escrow init transaction: %w", err)
	}
	initRes, err := l.ledger.SubmitXDR(ctx, initTx.EnvelopeXdr)
	recordLedgerTx(l.db, initTx, model.LedgerTxKindEscrowInvoke, initRes, err)
	if err != nil && stellar.ClassOf(err) != stellar.ClassConflict {
		return nil, fmt.Errorf("failed to submit escrow init transaction: %w", err)
	}

	// 7. 落库
	salt := stellar.EscrowSalt(invoiceId)
	escrow := &model.EscrowContractModel{
		InvoiceId:         invoiceId,
		ContractId:        contractId,
		Salt:              hex.EncodeToString(salt[:]),
		ClientAddress:     l.ledger.PlatformAddress(),
		FreelancerAddress: freelancerAddress,
		ArbiterAddress:    l.ledger.ArbiterAddress(),
		AssetCode:         l.ledger.AssetCode(),
		AmountStroops:     amountStroops,
		FeeBps:            l.feeBps,
		Status:            model.EscrowStatusNone,
		DeployTxHash:      deployTx.Hash,
		InitTxHash:        initTx.Hash,
	}
	if err := l.db.Create(escrow).Error; err != nil {
		// 并发开启撞了唯一索引，读回已有记录
		var raced model.EscrowContractModel
		if qerr := l.db.Where("invoice_id = ?", invoiceId).First(&raced).Error; qerr == nil {
			return &raced, nil
		}
		return nil, fmt.Errorf("failed to create escrow contract: %w", err)
	}

	if err := l.db.Model(&model.InvoiceModel{}).Where("id = ?", invoiceId).
		Update("escrow_enabled", true).Error; err != nil {
		logger.Error("Failed to flag invoice %d as escrowed: %v", invoiceId, err)
	}

	l.appendEvent(escrow, model.EscrowEventDeployed, invoice.OwnerEmail, model.ActorRoleFreelancer, deployTx.Hash,
		map[string]interface{}{"contract_id": contractId})

	logger.Info("Escrow enabled for invoice %d: contract=%s amount=%d stroops", invoiceId, contractId, amountStroops)
	return escrow, nil
}

// GetEscrow 查询发票的托管记录
func (l *EscrowLogic) GetEscrow(ctx context.Context, invoiceId int64) (*model.EscrowContractModel, error) {
	var escrow model.EscrowContractModel
	if err := l.db.Where("invoice_id = ?", invoiceId).First(&escrow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEscrowNotFound
		}
		return nil, fmt.Errorf("failed to query escrow contract: %w", err)
	}
	return &escrow, nil
}

// ListEvents 按时间顺序返回托管事件
func (l *EscrowLogic) ListEvents(ctx context.Context, invoiceId int64) ([]model.EscrowEventModel, error) {
	escrow, err := l.GetEscrow(ctx, invoiceId)
	if err != nil {
		return nil, err
	}
	var events []model.EscrowEventModel
	if err := l.db.Where("escrow_id = ?", escrow.Id).Order("id ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to query escrow events: %w", err)
	}
	return events, nil
}

// ReportFunding 记录客户上报的注资交易哈希，等待监控确认
func (l *EscrowLogic) ReportFunding(ctx context.Context, invoiceId int64, txHash string) (*model.EscrowContractModel, error) {
	if raw, err := hex.DecodeString(txHash); err != nil || len(raw) != 32 {
		return nil, errors.New("交易哈希格式无效")
	}
	escrow, err := l.GetEscrow(ctx, invoiceId)
	if err != nil {
		return nil, err
	}
	switch escrow.Status {
	case model.EscrowStatusNone:
		// 待确认期间允许覆盖，客户可能换了一笔交易
		if err := l.db.Model(&model.EscrowContractModel{}).
			Where("id = ? AND status = ?", escrow.Id, model.EscrowStatusNone).
			Update("fund_tx_hash", txHash).Error; err != nil {
			return nil, fmt.Errorf("failed to record funding transaction: %w", err)
		}
	case model.EscrowStatusHeld:
		// 已经确认到账，幂等返回
	default:
		return nil, ErrStateConflict
	}
	return l.GetEscrow(ctx, invoiceId)
}

// ConfirmFunding 校验上报的注资交易并推进托管状态
func (l *EscrowLogic) ConfirmFunding(ctx context.Context, escrowId int64) error {
	var escrow model.EscrowContractModel
	if err := l.db.Where("id = ?", escrowId).First(&escrow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEscrowNotFound
		}
		return fmt.Errorf("failed to query escrow contract: %w", err)
	}
	if escrow.Status != model.EscrowStatusNone {
		return nil
	}
	if escrow.FundTxHash == "" {
		return errors.New("尚未上报注资交易")
	}

	tx, err := l.ledger.Transaction(ctx, escrow.FundTxHash)
	if err != nil {
		if errors.Is(err, stellar.ErrTxNotFound) {
			// 还没上链，等下一轮
			return err
		}
		return fmt.Errorf("failed to verify funding transaction: %w", err)
	}
	if !tx.Successful {
		// 注资交易失败，清掉哈希让客户重新注资
		if err := l.db.Model(&model.EscrowContractModel{}).
			Where("id = ?", escrow.Id).Update("fund_tx_hash", "").Error; err != nil {
			logger.Error("Failed to clear funding hash for escrow %d: %v", escrow.Id, err)
		}
		return errors.New("注资交易执行失败")
	}
	return l.MarkFunded(ctx, escrow.Id, escrow.FundTxHash)
}

// MarkFunded 资金到账回调：none→held，竞态下静默跳过
func (l *EscrowLogic) MarkFunded(ctx context.Context, escrowId int64, txHash string) error {
	var escrow model.EscrowContractModel
	if err := l.db.Where("id = ?", escrowId).First(&escrow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEscrowNotFound
		}
		return fmt.Errorf("failed to query escrow contract: %w", err)
	}

	result := l.db.Model(&model.EscrowContractModel{}).
		Where("id = ? AND status = ?", escrowId, model.EscrowStatusNone).
		Updates(map[string]interface{}{
			"status":       model.EscrowStatusHeld,
			"fund_tx_hash": txHash,
			"funded_at":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update escrow status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// 已被并发确认，跳过
		return nil
	}

	l.appendEvent(&escrow, model.EscrowEventFunded, "", model.ActorRolePlatform, txHash, nil)

	var invoice model.InvoiceModel
	if err := l.db.Where("id = ?", escrow.InvoiceId).First(&invoice).Error; err == nil {
		l.notifyEscrow(&escrow, notify.Event{
			Kind:      notify.KindEscrowFunded,
			InvoiceId: escrow.InvoiceId,
			Recipient: invoice.OwnerEmail,
			Payload:   map[string]interface{}{"tx_hash": txHash},
		})
	}
	logger.Info("Escrow %d funded for invoice %d: tx=%s", escrowId, escrow.InvoiceId, txHash)
	return nil
}

// ReleaseEscrow 放款：客户确认后把托管资金释放给自由职业者
//
// 先提交账本放款，成功后再用条件更新收敛状态，并发放款只有一个赢家。
func (l *EscrowLogic) ReleaseEscrow(ctx context.Context, invoiceId int64, approverEmail, note string) (*model.EscrowContractModel, error) {
	// 1. 验证发票
	var invoice model.InvoiceModel
	if err := l.db.Where("id = ?", invoiceId).First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to query invoice: %w", err)
	}

	// 2. 只有发票上的客户邮箱可以放款
	if approverEmail == "" {
		return nil, errors.New("缺少验证邮箱")
	}
	if !strings.EqualFold(approverEmail, invoice.ClientEmail) {
		return nil, ErrNotAuthorized
	}

	// 3. 托管必须处于 held 或 disputed
	escrow, err := l.GetEscrow(ctx, invoiceId)
	if err != nil {
		return nil, err
	}
	if escrow.Status != model.EscrowStatusHeld && escrow.Status != model.EscrowStatusDisputed {
		return nil, ErrStateConflict
	}

	// 4. 先提交账本放款
	releaseTx, err := l.ledger.BuildEscrowRelease(ctx, escrow.ContractId)
	if err != nil {
		return nil, fmt.Errorf("failed to build escrow release transaction: %w", err)
	}
	releaseRes, err := l.ledger.SubmitXDR(ctx, releaseTx.EnvelopeXdr)
	recordLedgerTx(l.db, releaseTx, model.LedgerTxKindEscrowInvoke, releaseRes, err)
	if err != nil {
		return nil, fmt.Errorf("failed to submit escrow release transaction: %w", err)
	}

	// 5. 条件更新：0 行说明并发放款已经赢了
	result := l.db.Model(&model.EscrowContractModel{}).
		Where("id = ? AND status IN ?", escrow.Id, []model.EscrowStatus{model.EscrowStatusHeld, model.EscrowStatusDisputed}).
		Updates(map[string]interface{}{
			"status":          model.EscrowStatusReleased,
			"release_tx_hash": releaseTx.Hash,
			"released_at":     time.Now(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update escrow status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrStateConflict
	}

	// 6. 记录平台费拆分
	split, err := feesplit.ComputeSplit(escrow.AmountStroops, escrow.FeeBps)
	if err != nil {
		logger.Error("Failed to compute fee split for invoice %d: %v", invoiceId, err)
	} else {
		record := &model.PayoutRecordModel{
			InvoiceId:        invoiceId,
			RecipientAddress: escrow.FreelancerAddress,
			AmountStroops:    split.NetStroops,
			AssetCode:        escrow.AssetCode,
			Kind:             model.PayoutKindRelease,
			Status:           model.PayoutRecordStatusConfirmed,
			TxHash:           releaseTx.Hash,
		}
		if err := l.db.Create(record).Error; err != nil {
			logger.Error("Failed to record release payout for invoice %d: %v", invoiceId, err)
		}
	}

	metadata := map[string]interface{}{
		"fee_stroops": split.FeeStroops,
		"net_stroops": split.NetStroops,
	}
	if note != "" {
		metadata["note"] = note
	}
	l.appendEvent(escrow, model.EscrowEventReleased, approverEmail, model.ActorRoleClient, releaseTx.Hash, metadata)

	// 7. 发票结清
	if err := l.db.Model(&model.InvoiceModel{}).Where("id = ?", invoiceId).
		Updates(map[string]interface{}{
			"status":       model.InvoiceStatusPaid,
			"paid_at":      time.Now(),
			"paid_tx_hash": releaseTx.Hash,
		}).Error; err != nil {
		logger.Error("Failed to mark invoice %d paid: %v", invoiceId, err)
	}

	// 8. 触发协作者分账，分账失败不影响放款结果
	if l.waterfall != nil {
		if _, err := l.waterfall.ProcessWaterfall(ctx, invoiceId); err != nil {
			logger.Warn("Waterfall distribution for invoice %d failed: %v", invoiceId, err)
		}
	}

	l.notifyEscrow(escrow, notify.Event{
		Kind:      notify.KindEscrowReleased,
		InvoiceId: invoiceId,
		Recipient: invoice.OwnerEmail,
		Payload: map[string]interface{}{
			"tx_hash":     releaseTx.Hash,
			"net_stroops": split.NetStroops,
		},
	})

	logger.Info("Escrow released for invoice %d: tx=%s fee=%d net=%d", invoiceId, releaseTx.Hash, split.FeeStroops, split.NetStroops)
	return l.GetEscrow(ctx, invoiceId)
}

// DisputeEscrow 发起争议：held→disputed
func (l *EscrowLogic) DisputeEscrow(ctx context.Context, invoiceId int64, actorEmail, reason string) (*model.EscrowContractModel, error) {
	var invoice model.InvoiceModel
	if err := l.db.Where("id = ?", invoiceId).First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to query invoice: %w", err)
	}

	actorRole, err := partyRole(&invoice, actorEmail)
	if err != nil {
		return nil, err
	}

	escrow, err := l.GetEscrow(ctx, invoiceId)
	if err != nil {
		return nil, err
	}
	if escrow.Status != model.EscrowStatusHeld {
		return nil, ErrStateConflict
	}

	disputeTx, err := l.ledger.BuildEscrowDispute(ctx, escrow.ContractId)
	if err != nil {
		return nil, fmt.Errorf("failed to build escrow dispute transaction: %w", err)
	}
	disputeRes, err := l.ledger.SubmitXDR(ctx, disputeTx.EnvelopeXdr)
	recordLedgerTx(l.db, disputeTx, model.LedgerTxKindEscrowInvoke, disputeRes, err)
	if err != nil {
		return nil, fmt.Errorf("failed to submit escrow dispute transaction: %w", err)
	}

	result := l.db.Model(&model.EscrowContractModel{}).
		Where("id = ? AND status = ?", escrow.Id, model.EscrowStatusHeld).
		Update("status", model.EscrowStatusDisputed)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update escrow status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrStateConflict
	}

	metadata := map[string]interface{}{}
	if reason != "" {
		metadata["reason"] = reason
	}
	l.appendEvent(escrow, model.EscrowEventDisputed, actorEmail, actorRole, disputeTx.Hash, metadata)

	l.notifyEscrow(escrow, notify.Event{
		Kind:      notify.KindEscrowDisputed,
		InvoiceId: invoiceId,
		Recipient: invoice.OwnerEmail,
		Payload:   map[string]interface{}{"reason": reason},
	})

	logger.Info("Escrow disputed for invoice %d by %s", invoiceId, actorEmail)
	return l.GetEscrow(ctx, invoiceId)
}

// SubmitEvidence 争议期间提交证据，只追加事件不动账本
func (l *EscrowLogic) SubmitEvidence(ctx context.Context, invoiceId int64, actorEmail, evidenceHash string) (*model.EscrowEventModel, error) {
	if evidenceHash == "" {
		return nil, errors.New("证据内容不能为空")
	}

	var invoice model.InvoiceModel
	if err := l.db.Where("id = ?", invoiceId).First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to query invoice: %w", err)
	}
	actorRole, err := partyRole(&invoice, actorEmail)
	if err != nil {
		return nil, err
	}

	escrow, err := l.GetEscrow(ctx, invoiceId)
	if err != nil {
		return nil, err
	}
	if escrow.Status != model.EscrowStatusDisputed {
		return nil, ErrStateConflict
	}

	raw, _ := json.Marshal(map[string]interface{}{"evidence_hash": evidenceHash})
	event := &model.EscrowEventModel{
		EscrowId:  escrow.Id,
		InvoiceId: invoiceId,
		EventType: model.EscrowEventEvidenceSubmitted,
		Actor:     actorEmail,
		ActorRole: actorRole,
		Metadata:  string(raw),
	}
	if err := l.db.Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to append escrow event: %w", err)
	}
	return event, nil
}

// ResolveDispute 仲裁裁决：按比例分配后进入终态
//
// freelancerBps 为自由职业者分得的万分比，0 表示全额退款。
func (l *EscrowLogic) ResolveDispute(ctx context.Context, invoiceId int64, arbiterEmail string, freelancerBps uint32, note string) (*model.EscrowContractModel, error) {
	if freelancerBps > 10000 {
		return nil, errors.New("分配比例超出范围")
	}
	if err := l.requireArbiter(arbiterEmail); err != nil {
		return nil, err
	}

	escrow, err := l.GetEscrow(ctx, invoiceId)
	if err != nil {
		return nil, err
	}
	if escrow.Status != model.EscrowStatusDisputed {
		return nil, ErrStateConflict
	}

	adjTx, err := l.ledger.BuildEscrowAdjudicate(ctx, escrow.ContractId, freelancerBps)
	if err != nil {
		return nil, fmt.Errorf("failed to build escrow adjudicate transaction: %w", err)
	}
	adjRes, err := l.ledger.SubmitXDR(ctx, adjTx.EnvelopeXdr)
	recordLedgerTx(l.db, adjTx, model.LedgerTxKindEscrowInvoke, adjRes, err)
	if err != nil {
		return nil, fmt.Errorf("failed to submit escrow adjudicate transaction: %w", err)
	}

	updates := map[string]interface{}{}
	if freelancerBps == 0 {
		updates["status"] = model.EscrowStatusRefunded
		updates["refund_tx_hash"] = adjTx.Hash
		updates["refunded_at"] = time.Now()
	} else {
		updates["status"] = model.EscrowStatusReleased
		updates["release_tx_hash"] = adjTx.Hash
		updates["released_at"] = time.Now()
	}
	result := l.db.Model(&model.EscrowContractModel{}).
		Where("id = ? AND status = ?", escrow.Id, model.EscrowStatusDisputed).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update escrow status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrStateConflict
	}

	metadata := map[string]interface{}{"freelancer_bps": freelancerBps}
	if note != "" {
		metadata["note"] = note
	}
	l.appendEvent(escrow, model.EscrowEventAdjudicated, arbiterEmail, model.ActorRoleArbiter, adjTx.Hash, metadata)

	var invoice model.InvoiceModel
	if err := l.db.Where("id = ?", invoiceId).First(&invoice).Error; err != nil {
		logger.Error("Failed to query invoice %d after adjudication: %v", invoiceId, err)
	}

	if freelancerBps > 0 {
		if err := l.db.Model(&model.InvoiceModel{}).Where("id = ?", invoiceId).
			Updates(map[string]interface{}{
				"status":       model.InvoiceStatusPaid,
				"paid_at":      time.Now(),
				"paid_tx_hash": adjTx.Hash,
			}).Error; err != nil {
			logger.Error("Failed to mark invoice %d paid: %v", invoiceId, err)
		}
		if l.waterfall != nil && freelancerBps == 10000 {
			if _, err := l.waterfall.ProcessWaterfall(ctx, invoiceId); err != nil {
				logger.Warn("Waterfall distribution for invoice %d failed: %v", invoiceId, err)
			}
		}
	}

	l.notifyEscrow(escrow, notify.Event{
		Kind:      notify.KindEscrowResolved,
		InvoiceId: invoiceId,
		Recipient: invoice.OwnerEmail,
		Payload:   map[string]interface{}{"freelancer_bps": freelancerBps, "tx_hash": adjTx.Hash},
	})

	logger.Info("Escrow dispute resolved for invoice %d: freelancer_bps=%d tx=%s", invoiceId, freelancerBps, adjTx.Hash)
	return l.GetEscrow(ctx, invoiceId)
}

// RefundEscrow 仲裁全额退款：disputed→refunded
func (l *EscrowLogic) RefundEscrow(ctx context.Context, invoiceId int64, arbiterEmail string) (*model.EscrowContractModel, error) {
	if err := l.requireArbiter(arbiterEmail); err != nil {
		return nil, err
	}

	escrow, err := l.GetEscrow(ctx, invoiceId)
	if err != nil {
		return nil, err
	}
	if escrow.Status != model.EscrowStatusDisputed {
		return nil, ErrStateConflict
	}

	refundTx, err := l.ledger.BuildEscrowRefund(ctx, escrow.ContractId)
	if err != nil {
		return nil, fmt.Errorf("failed to build escrow refund transaction: %w", err)
	}
	refundRes, err := l.ledger.SubmitXDR(ctx, refundTx.EnvelopeXdr)
	recordLedgerTx(l.db, refundTx, model.LedgerTxKindEscrowInvoke, refundRes, err)
	if err != nil {
		return nil, fmt.Errorf("failed to submit escrow refund transaction: %w", err)
	}

	result := l.db.Model(&model.EscrowContractModel{}).
		Where("id = ? AND status = ?", escrow.Id, model.EscrowStatusDisputed).
		Updates(map[string]interface{}{
			"status":         model.EscrowStatusRefunded,
			"refund_tx_hash": refundTx.Hash,
			"refunded_at":    time.Now(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update escrow status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrStateConflict
	}

	l.appendEvent(escrow, model.EscrowEventRefunded, arbiterEmail, model.ActorRoleArbiter, refundTx.Hash, nil)

	var invoice model.InvoiceModel
	if err := l.db.Where("id = ?", invoiceId).First(&invoice).Error; err == nil {
		l.notifyEscrow(escrow, notify.Event{
			Kind:      notify.KindEscrowRefunded,
			InvoiceId: invoiceId,
			Recipient: invoice.ClientEmail,
			Payload:   map[string]interface{}{"tx_hash": refundTx.Hash},
		})
	}

	logger.Info("Escrow refunded for invoice %d: tx=%s", invoiceId, refundTx.Hash)
	return l.GetEscrow(ctx, invoiceId)
}

// notifyEscrow 投递托管通知，投递失败补一条 notify_failed 事件
func (l *EscrowLogic) notifyEscrow(escrow *model.EscrowContractModel, event notify.Event) {
	notify.Dispatch(l.notifier, event, func(err error) {
		l.appendEvent(escrow, model.EscrowEventNotifyFailed, "", model.ActorRolePlatform, "",
			map[string]interface{}{"kind": event.Kind, "error": err.Error()})
	})
}

// requireArbiter 校验邮箱对应的用户具有仲裁员角色
func (l *EscrowLogic) requireArbiter(email string) error {
	if email == "" {
		return errors.New("缺少验证邮箱")
	}
	var user model.UserModel
	if err := l.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotAuthorized
		}
		return fmt.Errorf("failed to query user: %w", err)
	}
	if user.Role != model.UserRoleArbiter {
		return ErrNotAuthorized
	}
	return nil
}

// partyRole 校验操作者是发票的客户或所有者，返回对应角色
func partyRole(invoice *model.InvoiceModel, email string) (model.ActorRole, error) {
	if email == "" {
		return "", errors.New("缺少验证邮箱")
	}
	if strings.EqualFold(email, invoice.ClientEmail) {
		return model.ActorRoleClient, nil
	}
	if strings.EqualFold(email, invoice.OwnerEmail) {
		return model.ActorRoleFreelancer, nil
	}
	return "", ErrNotAuthorized
}

// appendEvent 追加托管事件，失败只记录日志不回滚业务
func (l *EscrowLogic) appendEvent(escrow *model.EscrowContractModel, eventType model.EscrowEventType, actor string, actorRole model.ActorRole, txHash string, metadata map[string]interface{}) {
	event := &model.EscrowEventModel{
		EscrowId:  escrow.Id,
		InvoiceId: escrow.InvoiceId,
		EventType: eventType,
		Actor:     actor,
		ActorRole: actorRole,
		TxHash:    txHash,
	}
	if len(metadata) > 0 {
		raw, _ := json.Marshal(metadata)
		event.Metadata = string(raw)
	}
	if err := l.db.Create(event).Error; err != nil {
		logger.Error("Failed to append escrow event %s for invoice %d: %v", eventType, escrow.InvoiceId, err)
	}
}

// recordLedgerTx 登记一笔已提交的账本交易
func recordLedgerTx(db *gorm.DB, built *stellar.BuiltTx, kind model.LedgerTxKind, res *stellar.SubmitResult, submitErr error) {
	record := &model.LedgerTxModel{
		Hash:        built.Hash,
		EnvelopeXdr: built.EnvelopeXdr,
		Kind:        kind,
		Status:      model.LedgerTxStatusSubmitted,
	}
	if submitErr != nil {
		// 瞬时失败（超时、网关故障）的交易可能已经上链，
		// 保持 submitted 让巡检去确认或救援
		record.Status = model.LedgerTxStatusFailed
		if stellar.IsTransient(submitErr) {
			record.Status = model.LedgerTxStatusSubmitted
		}
		record.LastError = stellar.ReasonCode(submitErr)
	} else if res != nil && res.Successful {
		record.Status = model.LedgerTxStatusConfirmed
		record.FeeCharged = res.FeeCharged
	}
	if err := db.Create(record).Error; err != nil {
		logger.Error("Failed to record ledger transaction %s: %v", built.Hash, err)
	}
}
