package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/lancepay/lps/internal/logic"
)

// InvoiceHandler 发票处理器
type InvoiceHandler struct {
	invoiceLogic *logic.InvoiceLogic
}

// NewInvoiceHandler 创建发票处理器
func NewInvoiceHandler(invoiceLogic *logic.InvoiceLogic) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceLogic: invoiceLogic,
	}
}

// CreateInvoice 创建发票
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	var req struct {
		OwnerEmail  string          `json:"owner_email"`
		ClientEmail string          `json:"client_email"`
		Title       string          `json:"title"`
		Amount      decimal.Decimal `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的请求参数: "+err.Error())
		return
	}

	// 调用logic层创建发票
	invoice, err := h.invoiceLogic.CreateInvoice(c.Request.Context(), req.OwnerEmail, req.ClientEmail, req.Title, req.Amount)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "发票创建成功", CreateInvoiceResponse{
		Invoice: ToInvoiceResponse(invoice),
	})
}

// GetInvoice 获取发票详情
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	invoiceId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的发票ID")
		return
	}

	// 调用logic层获取发票详情
	invoice, err := h.invoiceLogic.GetInvoice(c.Request.Context(), invoiceId)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取发票详情成功", GetInvoiceResponse{
		Invoice: ToInvoiceResponse(invoice),
	})
}

// ListInvoices 获取发票列表
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	ownerEmail := c.Query("owner_email")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	// 调用logic层获取发票列表
	invoices, total, err := h.invoiceLogic.ListInvoices(c.Request.Context(), ownerEmail, page, pageSize)
	if err != nil {
		FailResponse(c, err)
		return
	}

	pagination := Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}

	SuccessResponse(c, http.StatusOK, "获取发票列表成功", GetInvoicesResponse{
		Invoices:   ToInvoiceResponseList(invoices),
		Pagination: pagination,
	})
}

// MarkPaid 结清发票
//
// 调用方身份取自上游网关注入的 X-Verified-Email，必须与客户邮箱一致。
// 结清成功后立即触发一轮分账。
func (h *InvoiceHandler) MarkPaid(c *gin.Context) {
	invoiceId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的发票ID")
		return
	}

	// 请求体可选，只携带链上支付凭证
	var req struct {
		TxHash string `json:"tx_hash"`
	}
	_ = c.ShouldBindJSON(&req)

	// 调用logic层结清发票并触发分账
	invoice, payouts, err := h.invoiceLogic.MarkPaid(c.Request.Context(), invoiceId, verifiedEmail(c), req.TxHash)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "发票已结清", MarkPaidResponse{
		Invoice: ToInvoiceResponse(invoice),
		Payouts: ToPayoutResultResponseList(payouts),
	})
}
