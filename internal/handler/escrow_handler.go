package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lancepay/lps/internal/logic"
)

// EscrowHandler 托管处理器
type EscrowHandler struct {
	escrowLogic *logic.EscrowLogic
}

// NewEscrowHandler 创建托管处理器
func NewEscrowHandler(escrowLogic *logic.EscrowLogic) *EscrowHandler {
	return &EscrowHandler{
		escrowLogic: escrowLogic,
	}
}

// EnableEscrow 为发票启用托管
//
// 重复启用是幂等的，返回同一个合约。
func (h *EscrowHandler) EnableEscrow(c *gin.Context) {
	invoiceId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的发票ID")
		return
	}

	// 调用logic层部署并初始化托管合约
	escrow, err := h.escrowLogic.EnableEscrow(c.Request.Context(), invoiceId)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "托管已启用", GetEscrowResponse{
		Escrow: ToEscrowResponse(escrow),
	})
}

// GetEscrow 获取托管详情
func (h *EscrowHandler) GetEscrow(c *gin.Context) {
	invoiceId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的发票ID")
		return
	}

	escrow, err := h.escrowLogic.GetEscrow(c.Request.Context(), invoiceId)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取托管详情成功", GetEscrowResponse{
		Escrow: ToEscrowResponse(escrow),
	})
}

// ListEvents 获取托管事件轨迹
func (h *EscrowHandler) ListEvents(c *gin.Context) {
	invoiceId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的发票ID")
		return
	}

	events, err := h.escrowLogic.ListEvents(c.Request.Context(), invoiceId)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取托管事件成功", GetEscrowEventsResponse{
		Events: ToEscrowEventResponseList(events),
	})
}

// ReportFunding 登记客户的入金交易哈希
func (h *EscrowHandler) ReportFunding(c *gin.Context) {
	invoiceId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的发票ID")
		return
	}

	var req struct {
		TxHash string `json:"tx_hash"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的请求参数: "+err.Error())
		return
	}

	// 调用logic层登记入金交易，确认由后台监控完成
	escrow, err := h.escrowLogic.ReportFunding(c.Request.Context(), invoiceId, req.TxHash)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "注资交易已登记", GetEscrowResponse{
		Escrow: ToEscrowResponse(escrow),
	})
}

// ReleaseEscrow 放款
//
// 只有客户邮箱可以批准放款，放款成功即结清发票并触发分账。
func (h *EscrowHandler) ReleaseEscrow(c *gin.Context) {
	invoiceId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的发票ID")
		return
	}

	// 请求体可选，只携带备注
	var req struct {
		Note string `json:"note"`
	}
	_ = c.ShouldBindJSON(&req)

	escrow, err := h.escrowLogic.ReleaseEscrow(c.Request.Context(), invoiceId, verifiedEmail(c), req.Note)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "托管已放款", GetEscrowResponse{
		Escrow: ToEscrowResponse(escrow),
	})
}

// DisputeEscrow 发起争议
func (h *EscrowHandler) DisputeEscrow(c *gin.Context) {
	invoiceId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的发票ID")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	escrow, err := h.escrowLogic.DisputeEscrow(c.Request.Context(), invoiceId, verifiedEmail(c), req.Reason)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "争议已受理", GetEscrowResponse{
		Escrow: ToEscrowResponse(escrow),
	})
}

// SubmitEvidence 争议期间提交证据
func (h *EscrowHandler) SubmitEvidence(c *gin.Context) {
	invoiceId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的发票ID")
		return
	}

	var req struct {
		EvidenceHash string `json:"evidence_hash"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的请求参数: "+err.Error())
		return
	}

	event, err := h.escrowLogic.SubmitEvidence(c.Request.Context(), invoiceId, verifiedEmail(c), req.EvidenceHash)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "证据已提交", ToEscrowEventResponse(event))
}

// ResolveDispute 仲裁裁决
//
// freelancer_bps 为自由职业者分得的万分比，0 表示全额退款，10000 表示全额放款。
func (h *EscrowHandler) ResolveDispute(c *gin.Context) {
	invoiceId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的发票ID")
		return
	}

	// 用指针区分「未传比例」和「比例为0（全额退款）」
	var req struct {
		FreelancerBps *uint32 `json:"freelancer_bps"`
		Note          string  `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的请求参数: "+err.Error())
		return
	}
	if req.FreelancerBps == nil {
		ErrorResponse(c, http.StatusBadRequest, "缺少分配比例")
		return
	}

	escrow, err := h.escrowLogic.ResolveDispute(c.Request.Context(), invoiceId, verifiedEmail(c), *req.FreelancerBps, req.Note)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "争议已裁决", GetEscrowResponse{
		Escrow: ToEscrowResponse(escrow),
	})
}

// RefundEscrow 全额退款
//
// 仅仲裁人可操作，等价于裁决 freelancer_bps=0。
func (h *EscrowHandler) RefundEscrow(c *gin.Context) {
	invoiceId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的发票ID")
		return
	}

	escrow, err := h.escrowLogic.RefundEscrow(c.Request.Context(), invoiceId, verifiedEmail(c))
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "托管已退款", GetEscrowResponse{
		Escrow: ToEscrowResponse(escrow),
	})
}
