package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lancepay/lps/internal/logic"
)

// RescueHandler 交易救援处理器
type RescueHandler struct {
	rescueLogic *logic.RescueLogic
}

// NewRescueHandler 创建交易救援处理器
func NewRescueHandler(rescueLogic *logic.RescueLogic) *RescueHandler {
	return &RescueHandler{
		rescueLogic: rescueLogic,
	}
}

// Rescue 费用置换救援一笔卡住的交易
//
// max_fee 是调用方愿意出的单操作费上限（stroop），
// 低于动态下限时按下限执行。每次调用只提交一笔置换交易。
func (h *RescueHandler) Rescue(c *gin.Context) {
	var req struct {
		EnvelopeXdr string `json:"envelope_xdr"`
		MaxFee      int64  `json:"max_fee"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的请求参数: "+err.Error())
		return
	}

	// 调用logic层构建并提交费用置换交易
	outcome, err := h.rescueLogic.Rescue(c.Request.Context(), req.EnvelopeXdr, req.MaxFee)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "交易救援成功", RescueResponse{
		OriginalHash: outcome.OriginalHash,
		NewHash:      outcome.NewHash,
		MaxFeePerOp:  outcome.MaxFeePerOp,
	})
}
