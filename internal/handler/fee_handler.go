package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/lancepay/lps/internal/feesplit"
)

// FeeHandler 平台费处理器
type FeeHandler struct {
	defaultFeeBps int64
}

// NewFeeHandler 创建平台费处理器，defaultFeeBps 为未指定费率时的平台费率
func NewFeeHandler(defaultFeeBps int64) *FeeHandler {
	return &FeeHandler{
		defaultFeeBps: defaultFeeBps,
	}
}

// ComputeSplit 试算平台费拆分
//
// gross 为7位小数以内的金额，fee_bps 缺省时按平台费率计算。
// 纯计算，不落库不上链。
func (h *FeeHandler) ComputeSplit(c *gin.Context) {
	var req struct {
		Gross  decimal.Decimal `json:"gross"`
		FeeBps *int64          `json:"fee_bps"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的请求参数: "+err.Error())
		return
	}

	feeBps := h.defaultFeeBps
	if req.FeeBps != nil {
		feeBps = *req.FeeBps
	}

	grossStroops, err := feesplit.UnitsToStroops(req.Gross)
	if err != nil {
		FailResponse(c, err)
		return
	}
	split, err := feesplit.ComputeSplit(grossStroops, feeBps)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "平台费拆分成功", ToSplitResponse(split))
}
