package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lancepay/lps/internal/logic"
	"github.com/lancepay/lps/internal/model"
)

// WalletHandler 钱包处理器
type WalletHandler struct {
	fundingLogic *logic.FundingLogic
}

// NewWalletHandler 创建钱包处理器
func NewWalletHandler(fundingLogic *logic.FundingLogic) *WalletHandler {
	return &WalletHandler{
		fundingLogic: fundingLogic,
	}
}

// CreateWallet 创建托管钱包
//
// 密钥只在本次响应中出现一次，服务端不落库、不打日志。
func (h *WalletHandler) CreateWallet(c *gin.Context) {
	wallet, err := h.fundingLogic.CreateWallet(c.Request.Context())
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "钱包创建成功，请立即保存密钥", CreateWalletResponse{
		Address: wallet.Address,
		Seed:    wallet.Seed,
	})
}

// FundWallet 给账户注入初始余额
//
// 账户已存在返回 skipped，视为成功。
func (h *WalletHandler) FundWallet(c *gin.Context) {
	var req struct {
		Address string `json:"address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的请求参数: "+err.Error())
		return
	}

	// 调用logic层注资，瞬时失败在内部按退避策略重试
	outcome, err := h.fundingLogic.FundWallet(c.Request.Context(), req.Address, logic.FundingOptions{})
	if err != nil {
		FailResponse(c, err)
		return
	}

	message := "账户注资成功"
	if outcome.Status == model.FundingStatusSkipped {
		message = "账户已存在，跳过注资"
	}
	SuccessResponse(c, http.StatusOK, message, FundWalletResponse{
		Address:    outcome.Address,
		Status:     string(outcome.Status),
		TxHash:     outcome.TxHash,
		Attempts:   outcome.Attempts,
		LowBalance: outcome.LowBalance,
	})
}
