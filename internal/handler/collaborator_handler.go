package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/lancepay/lps/internal/logic"
)

// CollaboratorHandler 协作者分成处理器
type CollaboratorHandler struct {
	collaboratorLogic *logic.CollaboratorLogic
	waterfallLogic    *logic.WaterfallLogic
}

// NewCollaboratorHandler 创建协作者分成处理器
func NewCollaboratorHandler(collaboratorLogic *logic.CollaboratorLogic, waterfallLogic *logic.WaterfallLogic) *CollaboratorHandler {
	return &CollaboratorHandler{
		collaboratorLogic: collaboratorLogic,
		waterfallLogic:    waterfallLogic,
	}
}

// AddCollaborator 添加协作者分成
func (h *CollaboratorHandler) AddCollaborator(c *gin.Context) {
	invoiceId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的发票ID")
		return
	}

	var req struct {
		Email           string          `json:"email"`
		SharePercentage decimal.Decimal `json:"share_percentage"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的请求参数: "+err.Error())
		return
	}

	// 调用logic层添加协作者
	share, err := h.collaboratorLogic.AddCollaborator(c.Request.Context(), invoiceId, req.Email, req.SharePercentage)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "协作者添加成功", ToShareResponse(share))
}

// ListCollaborators 获取协作者列表及分成汇总
func (h *CollaboratorHandler) ListCollaborators(c *gin.Context) {
	invoiceId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的发票ID")
		return
	}

	summary, err := h.collaboratorLogic.ListCollaborators(c.Request.Context(), invoiceId)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取协作者列表成功", GetCollaboratorsResponse{
		Shares:       ToShareResponseList(summary.Shares),
		TotalPercent: summary.TotalPercent.StringFixed(2),
		LeadPercent:  summary.LeadPercent.StringFixed(2),
	})
}

// UpdateShare 调整协作者分成比例
func (h *CollaboratorHandler) UpdateShare(c *gin.Context) {
	invoiceId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的发票ID")
		return
	}
	shareId, err := strconv.ParseInt(c.Param("sid"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的分成ID")
		return
	}

	var req struct {
		SharePercentage decimal.Decimal `json:"share_percentage"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的请求参数: "+err.Error())
		return
	}

	share, err := h.collaboratorLogic.UpdateShare(c.Request.Context(), invoiceId, shareId, req.SharePercentage)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "分成比例更新成功", ToShareResponse(share))
}

// RemoveCollaborator 移除协作者分成
func (h *CollaboratorHandler) RemoveCollaborator(c *gin.Context) {
	invoiceId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的发票ID")
		return
	}
	shareId, err := strconv.ParseInt(c.Param("sid"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的分成ID")
		return
	}

	if err := h.collaboratorLogic.RemoveCollaborator(c.Request.Context(), invoiceId, shareId); err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "协作者已移除", nil)
}

// ProcessWaterfall 执行分账
//
// 发票必须已结清；重复调用只补付失败的行，已完成的行保持不变。
func (h *CollaboratorHandler) ProcessWaterfall(c *gin.Context) {
	invoiceId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的发票ID")
		return
	}

	results, err := h.waterfallLogic.ProcessWaterfall(c.Request.Context(), invoiceId)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "分账执行完成", ProcessWaterfallResponse{
		Results: ToPayoutResultResponseList(results),
	})
}
