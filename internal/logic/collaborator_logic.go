package logic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lancepay/lps/internal/feesplit"
	"github.com/lancepay/lps/internal/model"
)

// CollaboratorLogic 协作者分成业务逻辑
type CollaboratorLogic struct {
	db *gorm.DB
}

// NewCollaboratorLogic 创建协作者分成业务逻辑
func NewCollaboratorLogic(db *gorm.DB) *CollaboratorLogic {
	return &CollaboratorLogic{db: db}
}

// ShareSummary 分成列表及占比汇总
type ShareSummary struct {
	Shares       []model.CollaboratorShareModel
	TotalPercent decimal.Decimal
	LeadPercent  decimal.Decimal
}

var hundredPercent = decimal.NewFromInt(100)

// AddCollaborator 为发票添加协作者分成
func (l *CollaboratorLogic) AddCollaborator(ctx context.Context, invoiceId int64, email string, sharePct decimal.Decimal) (*model.CollaboratorShareModel, error) {
	// 1. 验证发票
	invoice, err := l.editableInvoice(invoiceId)
	if err != nil {
		return nil, err
	}

	// 2. 验证协作者邮箱
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, errors.New("协作者邮箱无效")
	}
	if strings.EqualFold(email, invoice.OwnerEmail) {
		return nil, errors.New("发票所有者不能添加为协作者")
	}

	// 3. 验证分成比例
	if sharePct.LessThanOrEqual(decimal.Zero) || sharePct.GreaterThan(hundredPercent) {
		return nil, errors.New("分成比例必须在 (0, 100] 区间内")
	}

	var existing []model.CollaboratorShareModel
	if err := l.db.Where("invoice_id = ?", invoiceId).Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to query collaborator shares: %w", err)
	}
	total := sharePct
	for _, s := range existing {
		if strings.EqualFold(s.Email, email) {
			return nil, errors.New("协作者已存在")
		}
		total = total.Add(s.SharePercentage)
	}
	if total.GreaterThan(hundredPercent) {
		return nil, &feesplit.OverAllocationError{Total: total}
	}

	// 4. 预计算应得金额，钱包有绑定就带上
	amountDue, err := shareAmount(invoice.Amount, sharePct)
	if err != nil {
		return nil, err
	}
	walletAddress := ""
	var user model.UserModel
	if err := l.db.Where("email = ?", email).First(&user).Error; err == nil {
		walletAddress = user.WalletAddress
	}

	share := &model.CollaboratorShareModel{
		InvoiceId:       invoiceId,
		Email:           email,
		WalletAddress:   walletAddress,
		SharePercentage: sharePct,
		AmountDue:       amountDue,
		PayoutStatus:    model.PayoutStatusPending,
	}
	if err := l.db.Create(share).Error; err != nil {
		return nil, fmt.Errorf("failed to create collaborator share: %w", err)
	}
	return share, nil
}

// UpdateShare 调整协作者分成比例
func (l *CollaboratorLogic) UpdateShare(ctx context.Context, invoiceId, shareId int64, sharePct decimal.Decimal) (*model.CollaboratorShareModel, error) {
	invoice, err := l.editableInvoice(invoiceId)
	if err != nil {
		return nil, err
	}
	if sharePct.LessThanOrEqual(decimal.Zero) || sharePct.GreaterThan(hundredPercent) {
		return nil, errors.New("分成比例必须在 (0, 100] 区间内")
	}

	var share model.CollaboratorShareModel
	if err := l.db.Where("id = ? AND invoice_id = ?", shareId, invoiceId).First(&share).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShareNotFound
		}
		return nil, fmt.Errorf("failed to query collaborator share: %w", err)
	}
	if share.PayoutStatus == model.PayoutStatusCompleted || share.PayoutStatus == model.PayoutStatusProcessing {
		return nil, ErrStateConflict
	}

	var others []model.CollaboratorShareModel
	if err := l.db.Where("invoice_id = ? AND id <> ?", invoiceId, shareId).Find(&others).Error; err != nil {
		return nil, fmt.Errorf("failed to query collaborator shares: %w", err)
	}
	total := sharePct
	for _, s := range others {
		total = total.Add(s.SharePercentage)
	}
	if total.GreaterThan(hundredPercent) {
		return nil, &feesplit.OverAllocationError{Total: total}
	}

	amountDue, err := shareAmount(invoice.Amount, sharePct)
	if err != nil {
		return nil, err
	}
	if err := l.db.Model(&model.CollaboratorShareModel{}).Where("id = ?", shareId).
		Updates(map[string]interface{}{
			"share_percentage": sharePct,
			"amount_due":       amountDue,
		}).Error; err != nil {
		return nil, fmt.Errorf("failed to update collaborator share: %w", err)
	}
	share.SharePercentage = sharePct
	share.AmountDue = amountDue
	return &share, nil
}

// RemoveCollaborator 移除协作者分成
func (l *CollaboratorLogic) RemoveCollaborator(ctx context.Context, invoiceId, shareId int64) error {
	var share model.CollaboratorShareModel
	if err := l.db.Where("id = ? AND invoice_id = ?", shareId, invoiceId).First(&share).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrShareNotFound
		}
		return fmt.Errorf("failed to query collaborator share: %w", err)
	}
	if share.PayoutStatus == model.PayoutStatusCompleted || share.PayoutStatus == model.PayoutStatusProcessing {
		return ErrStateConflict
	}
	if err := l.db.Delete(&model.CollaboratorShareModel{}, share.Id).Error; err != nil {
		return fmt.Errorf("failed to delete collaborator share: %w", err)
	}
	return nil
}

// ListCollaborators 返回发票的全部分成及占比汇总
func (l *CollaboratorLogic) ListCollaborators(ctx context.Context, invoiceId int64) (*ShareSummary, error) {
	var invoice model.InvoiceModel
	if err := l.db.Where("id = ?", invoiceId).First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to query invoice: %w", err)
	}

	var shares []model.CollaboratorShareModel
	if err := l.db.Where("invoice_id = ?", invoiceId).Order("id ASC").Find(&shares).Error; err != nil {
		return nil, fmt.Errorf("failed to query collaborator shares: %w", err)
	}
	total := decimal.Zero
	for _, s := range shares {
		total = total.Add(s.SharePercentage)
	}
	return &ShareSummary{
		Shares:       shares,
		TotalPercent: total,
		LeadPercent:  hundredPercent.Sub(total),
	}, nil
}

// editableInvoice 读取发票并确认分成还允许调整
func (l *CollaboratorLogic) editableInvoice(invoiceId int64) (*model.InvoiceModel, error) {
	var invoice model.InvoiceModel
	if err := l.db.Where("id = ?", invoiceId).First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to query invoice: %w", err)
	}
	if invoice.Status == model.InvoiceStatusPaid {
		return nil, errors.New("发票已结清，分成不可调整")
	}

	var escrow model.EscrowContractModel
	err := l.db.Where("invoice_id = ?", invoiceId).First(&escrow).Error
	if err == nil && escrow.Status == model.EscrowStatusDisputed {
		return nil, ErrStateConflict
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query escrow contract: %w", err)
	}
	return &invoice, nil
}

// shareAmount 按统一的分账舍入规则预计算单个分成金额
func shareAmount(invoiceAmount, pct decimal.Decimal) (decimal.Decimal, error) {
	waterfall, err := feesplit.ComputeWaterfall(invoiceAmount, []feesplit.Share{{Id: 0, Percentage: pct}})
	if err != nil {
		return decimal.Zero, err
	}
	return waterfall.Distributions[0].Amount, nil
}
