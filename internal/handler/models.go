package handler

import (
	"time"

	"github.com/lancepay/lps/internal/feesplit"
	"github.com/lancepay/lps/internal/logic"
	"github.com/lancepay/lps/internal/model"
)

// 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// 分页信息结构
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"totalPage"`
}

// 发票相关响应模型

// InvoiceResponse 发票响应模型
type InvoiceResponse struct {
	ID            int64      `json:"id"`
	OwnerEmail    string     `json:"ownerEmail"`
	ClientEmail   string     `json:"clientEmail"`
	Title         string     `json:"title"`
	Amount        string     `json:"amount"`
	AssetCode     string     `json:"assetCode"`
	Status        string     `json:"status"`
	EscrowEnabled bool       `json:"escrowEnabled"`
	PaidAt        *time.Time `json:"paidAt"`
	PaidTxHash    string     `json:"paidTxHash"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// CreateInvoiceResponse 创建发票响应
type CreateInvoiceResponse struct {
	Invoice InvoiceResponse `json:"invoice"`
}

// GetInvoiceResponse 获取发票详情响应
type GetInvoiceResponse struct {
	Invoice InvoiceResponse `json:"invoice"`
}

// GetInvoicesResponse 获取发票列表响应
type GetInvoicesResponse struct {
	Invoices   []InvoiceResponse `json:"invoices"`
	Pagination Pagination        `json:"pagination"`
}

// MarkPaidResponse 结清发票响应，发票结清会立即触发一轮分账
type MarkPaidResponse struct {
	Invoice InvoiceResponse        `json:"invoice"`
	Payouts []PayoutResultResponse `json:"payouts"`
}

// 托管相关响应模型

// EscrowResponse 托管合约响应模型
type EscrowResponse struct {
	ID                int64      `json:"id"`
	InvoiceID         int64      `json:"invoiceId"`
	ContractID        string     `json:"contractId"`
	Salt              string     `json:"salt"`
	ClientAddress     string     `json:"clientAddress"`
	FreelancerAddress string     `json:"freelancerAddress"`
	ArbiterAddress    string     `json:"arbiterAddress"`
	AssetCode         string     `json:"assetCode"`
	AmountStroops     int64      `json:"amountStroops"`
	Amount            string     `json:"amount"`
	FeeBps            int64      `json:"feeBps"`
	Status            string     `json:"status"`
	DeployTxHash      string     `json:"deployTxHash"`
	FundTxHash        string     `json:"fundTxHash"`
	ReleaseTxHash     string     `json:"releaseTxHash"`
	RefundTxHash      string     `json:"refundTxHash"`
	FundedAt          *time.Time `json:"fundedAt"`
	ReleasedAt        *time.Time `json:"releasedAt"`
	RefundedAt        *time.Time `json:"refundedAt"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// GetEscrowResponse 获取托管详情响应
type GetEscrowResponse struct {
	Escrow EscrowResponse `json:"escrow"`
}

// EscrowEventResponse 托管事件响应模型
type EscrowEventResponse struct {
	ID        int64     `json:"id"`
	EventType string    `json:"eventType"`
	Actor     string    `json:"actor"`
	ActorRole string    `json:"actorRole"`
	TxHash    string    `json:"txHash"`
	Metadata  string    `json:"metadata"`
	CreatedAt time.Time `json:"createdAt"`
}

// GetEscrowEventsResponse 获取托管事件响应
type GetEscrowEventsResponse struct {
	Events []EscrowEventResponse `json:"events"`
}

// 协作者分成相关响应模型

// ShareResponse 协作者分成响应模型
type ShareResponse struct {
	ID              int64      `json:"id"`
	InvoiceID       int64      `json:"invoiceId"`
	Email           string     `json:"email"`
	WalletAddress   string     `json:"walletAddress"`
	SharePercentage string     `json:"sharePercentage"`
	AmountDue       string     `json:"amountDue"`
	PayoutStatus    string     `json:"payoutStatus"`
	PayoutTxHash    string     `json:"payoutTxHash"`
	FailReason      string     `json:"failReason"`
	CompletedAt     *time.Time `json:"completedAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// GetCollaboratorsResponse 获取协作者列表响应
type GetCollaboratorsResponse struct {
	Shares       []ShareResponse `json:"shares"`
	TotalPercent string          `json:"totalPercent"`
	LeadPercent  string          `json:"leadPercent"`
}

// PayoutResultResponse 单行分账结果响应模型，ShareID 为0表示负责人余款
type PayoutResultResponse struct {
	ShareID int64  `json:"shareId"`
	Email   string `json:"email"`
	Amount  string `json:"amount"`
	Status  string `json:"status"`
	TxHash  string `json:"txHash,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ProcessWaterfallResponse 分账执行响应
type ProcessWaterfallResponse struct {
	Results []PayoutResultResponse `json:"results"`
}

// 钱包与交易相关响应模型

// CreateWalletResponse 创建托管钱包响应，Seed 仅此一次返回，服务端不留存
type CreateWalletResponse struct {
	Address string `json:"address"`
	Seed    string `json:"seed"`
}

// FundWalletResponse 钱包注资响应
type FundWalletResponse struct {
	Address    string `json:"address"`
	Status     string `json:"status"`
	TxHash     string `json:"txHash,omitempty"`
	Attempts   int    `json:"attempts"`
	LowBalance bool   `json:"lowBalance"`
}

// SplitResponse 平台费拆分响应
type SplitResponse struct {
	GrossStroops int64  `json:"grossStroops"`
	FeeStroops   int64  `json:"feeStroops"`
	NetStroops   int64  `json:"netStroops"`
	Gross        string `json:"gross"`
	Fee          string `json:"fee"`
	Net          string `json:"net"`
}

// RescueResponse 交易救援响应
type RescueResponse struct {
	OriginalHash string `json:"originalHash"`
	NewHash      string `json:"newHash"`
	MaxFeePerOp  int64  `json:"maxFeePerOp"`
}

// 转换函数

// ToInvoiceResponse 将数据库模型转换为响应模型
func ToInvoiceResponse(invoice *model.InvoiceModel) InvoiceResponse {
	return InvoiceResponse{
		ID:            invoice.Id,
		OwnerEmail:    invoice.OwnerEmail,
		ClientEmail:   invoice.ClientEmail,
		Title:         invoice.Title,
		Amount:        invoice.Amount.StringFixed(2),
		AssetCode:     invoice.AssetCode,
		Status:        string(invoice.Status),
		EscrowEnabled: invoice.EscrowEnabled,
		PaidAt:        invoice.PaidAt,
		PaidTxHash:    invoice.PaidTxHash,
		CreatedAt:     invoice.CreatedAt,
		UpdatedAt:     invoice.UpdatedAt,
	}
}

// ToInvoiceResponseList 将数据库模型列表转换为响应模型列表
func ToInvoiceResponseList(invoices []model.InvoiceModel) []InvoiceResponse {
	result := make([]InvoiceResponse, len(invoices))
	for i, invoice := range invoices {
		result[i] = ToInvoiceResponse(&invoice)
	}
	return result
}

// ToEscrowResponse 将托管合约数据库模型转换为响应模型
func ToEscrowResponse(escrow *model.EscrowContractModel) EscrowResponse {
	return EscrowResponse{
		ID:                escrow.Id,
		InvoiceID:         escrow.InvoiceId,
		ContractID:        escrow.ContractId,
		Salt:              escrow.Salt,
		ClientAddress:     escrow.ClientAddress,
		FreelancerAddress: escrow.FreelancerAddress,
		ArbiterAddress:    escrow.ArbiterAddress,
		AssetCode:         escrow.AssetCode,
		AmountStroops:     escrow.AmountStroops,
		Amount:            feesplit.StroopsToUnits(escrow.AmountStroops).String(),
		FeeBps:            escrow.FeeBps,
		Status:            string(escrow.Status),
		DeployTxHash:      escrow.DeployTxHash,
		FundTxHash:        escrow.FundTxHash,
		ReleaseTxHash:     escrow.ReleaseTxHash,
		RefundTxHash:      escrow.RefundTxHash,
		FundedAt:          escrow.FundedAt,
		ReleasedAt:        escrow.ReleasedAt,
		RefundedAt:        escrow.RefundedAt,
		CreatedAt:         escrow.CreatedAt,
	}
}

// ToEscrowEventResponse 将托管事件数据库模型转换为响应模型
func ToEscrowEventResponse(event *model.EscrowEventModel) EscrowEventResponse {
	return EscrowEventResponse{
		ID:        event.Id,
		EventType: string(event.EventType),
		Actor:     event.Actor,
		ActorRole: string(event.ActorRole),
		TxHash:    event.TxHash,
		Metadata:  event.Metadata,
		CreatedAt: event.CreatedAt,
	}
}

// ToEscrowEventResponseList 将托管事件数据库模型列表转换为响应模型列表
func ToEscrowEventResponseList(events []model.EscrowEventModel) []EscrowEventResponse {
	result := make([]EscrowEventResponse, len(events))
	for i, event := range events {
		result[i] = ToEscrowEventResponse(&event)
	}
	return result
}

// ToShareResponse 将协作者分成数据库模型转换为响应模型
func ToShareResponse(share *model.CollaboratorShareModel) ShareResponse {
	return ShareResponse{
		ID:              share.Id,
		InvoiceID:       share.InvoiceId,
		Email:           share.Email,
		WalletAddress:   share.WalletAddress,
		SharePercentage: share.SharePercentage.StringFixed(2),
		AmountDue:       share.AmountDue.StringFixed(2),
		PayoutStatus:    string(share.PayoutStatus),
		PayoutTxHash:    share.PayoutTxHash,
		FailReason:      share.FailReason,
		CompletedAt:     share.CompletedAt,
		CreatedAt:       share.CreatedAt,
		UpdatedAt:       share.UpdatedAt,
	}
}

// ToShareResponseList 将协作者分成数据库模型列表转换为响应模型列表
func ToShareResponseList(shares []model.CollaboratorShareModel) []ShareResponse {
	result := make([]ShareResponse, len(shares))
	for i, share := range shares {
		result[i] = ToShareResponse(&share)
	}
	return result
}

// ToPayoutResultResponse 将分账结果转换为响应模型
func ToPayoutResultResponse(payout *logic.PayoutResult) PayoutResultResponse {
	return PayoutResultResponse{
		ShareID: payout.ShareId,
		Email:   payout.Email,
		Amount:  payout.Amount.StringFixed(2),
		Status:  string(payout.Status),
		TxHash:  payout.TxHash,
		Reason:  payout.Reason,
	}
}

// ToPayoutResultResponseList 将分账结果列表转换为响应模型列表
func ToPayoutResultResponseList(payouts []logic.PayoutResult) []PayoutResultResponse {
	result := make([]PayoutResultResponse, len(payouts))
	for i, payout := range payouts {
		result[i] = ToPayoutResultResponse(&payout)
	}
	return result
}

// ToSplitResponse 将平台费拆分结果转换为响应模型
func ToSplitResponse(split feesplit.Split) SplitResponse {
	return SplitResponse{
		GrossStroops: split.GrossStroops,
		FeeStroops:   split.FeeStroops,
		NetStroops:   split.NetStroops,
		Gross:        feesplit.StroopsToUnits(split.GrossStroops).String(),
		Fee:          feesplit.StroopsToUnits(split.FeeStroops).String(),
		Net:          feesplit.StroopsToUnits(split.NetStroops).String(),
	}
}
