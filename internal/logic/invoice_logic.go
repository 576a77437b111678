package logic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lancepay/lps/internal/feesplit"
	"github.com/lancepay/lps/internal/logger"
	"github.com/lancepay/lps/internal/model"
)

// InvoiceLogic 发票业务逻辑
//
// 完整的发票管理在上游平台，这里只承载结算流程需要的薄层。
type InvoiceLogic struct {
	db        *gorm.DB
	waterfall *WaterfallLogic
}

// NewInvoiceLogic 创建发票业务逻辑
func NewInvoiceLogic(db *gorm.DB, waterfall *WaterfallLogic) *InvoiceLogic {
	return &InvoiceLogic{db: db, waterfall: waterfall}
}

// CreateInvoice 创建发票
func (l *InvoiceLogic) CreateInvoice(ctx context.Context, ownerEmail, clientEmail, title string, amount decimal.Decimal) (*model.InvoiceModel, error) {
	// 1. 基本校验
	ownerEmail = strings.TrimSpace(ownerEmail)
	clientEmail = strings.TrimSpace(clientEmail)
	if ownerEmail == "" || !strings.Contains(ownerEmail, "@") {
		return nil, errors.New("开票人邮箱无效")
	}
	if clientEmail == "" || !strings.Contains(clientEmail, "@") {
		return nil, errors.New("客户邮箱无效")
	}
	if strings.EqualFold(ownerEmail, clientEmail) {
		return nil, errors.New("客户邮箱不能与开票人相同")
	}
	if title == "" {
		return nil, errors.New("发票标题不能为空")
	}
	if !amount.IsPositive() {
		return nil, errors.New("发票金额必须大于零")
	}
	if _, err := feesplit.UnitsToStroops(amount); err != nil {
		return nil, errors.New("发票金额精度无效")
	}

	// 2. 找不到开票人档案就建一个
	var owner model.UserModel
	err := l.db.Where("email = ?", ownerEmail).First(&owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		owner = model.UserModel{Email: ownerEmail, Role: model.UserRoleFreelancer}
		if cerr := l.db.Create(&owner).Error; cerr != nil {
			return nil, fmt.Errorf("failed to create user: %w", cerr)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	invoice := &model.InvoiceModel{
		OwnerId:     owner.Id,
		OwnerEmail:  ownerEmail,
		ClientEmail: clientEmail,
		Title:       title,
		Amount:      amount.Round(2),
		Status:      model.InvoiceStatusUnpaid,
	}
	if err := l.db.Create(invoice).Error; err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}
	logger.Info("Invoice %d created by %s for %s: %s", invoice.Id, ownerEmail, clientEmail, amount.String())
	return invoice, nil
}

// GetInvoice 查询发票
func (l *InvoiceLogic) GetInvoice(ctx context.Context, invoiceId int64) (*model.InvoiceModel, error) {
	var invoice model.InvoiceModel
	if err := l.db.Where("id = ?", invoiceId).First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to query invoice: %w", err)
	}
	return &invoice, nil
}

// ListInvoices 分页查询发票
func (l *InvoiceLogic) ListInvoices(ctx context.Context, ownerEmail string, page, pageSize int) ([]model.InvoiceModel, int64, error) {
	var invoices []model.InvoiceModel
	var total int64

	query := l.db.Model(&model.InvoiceModel{})
	if ownerEmail != "" {
		query = query.Where("owner_email = ?", ownerEmail)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count invoices: %w", err)
	}

	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Order("created_at DESC").Find(&invoices).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to query invoices: %w", err)
	}
	return invoices, total, nil
}

// MarkPaid 标记发票已结清并触发协作者分账
//
// 条件更新保证重复标记只有第一次生效，后续请求得到冲突错误。
func (l *InvoiceLogic) MarkPaid(ctx context.Context, invoiceId int64, actorEmail, txHash string) (*model.InvoiceModel, []PayoutResult, error) {
	var invoice model.InvoiceModel
	if err := l.db.Where("id = ?", invoiceId).First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrInvoiceNotFound
		}
		return nil, nil, fmt.Errorf("failed to query invoice: %w", err)
	}

	// 只有开票人可以标记线下收款
	if actorEmail == "" {
		return nil, nil, errors.New("缺少验证邮箱")
	}
	if !strings.EqualFold(actorEmail, invoice.OwnerEmail) {
		return nil, nil, ErrNotAuthorized
	}

	// 托管发票由放款流程结清，不允许手工标记
	if invoice.EscrowEnabled {
		return nil, nil, errors.New("托管发票需通过放款结清")
	}

	result := l.db.Model(&model.InvoiceModel{}).
		Where("id = ? AND status = ?", invoiceId, model.InvoiceStatusUnpaid).
		Updates(map[string]interface{}{
			"status":       model.InvoiceStatusPaid,
			"paid_at":      time.Now(),
			"paid_tx_hash": txHash,
		})
	if result.Error != nil {
		return nil, nil, fmt.Errorf("failed to update invoice status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil, ErrStateConflict
	}

	var results []PayoutResult
	if l.waterfall != nil {
		var err error
		results, err = l.waterfall.ProcessWaterfall(ctx, invoiceId)
		if err != nil {
			logger.Warn("Waterfall distribution for invoice %d failed: %v", invoiceId, err)
		}
	}

	updated, err := l.GetInvoice(ctx, invoiceId)
	if err != nil {
		return nil, results, err
	}
	logger.Info("Invoice %d marked paid by %s", invoiceId, actorEmail)
	return updated, results, nil
}
