package router

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lancepay/lps/internal/config"
	"github.com/lancepay/lps/internal/handler"
	"github.com/lancepay/lps/internal/logic"
	"github.com/lancepay/lps/internal/notify"
)

func Setup(db *gorm.DB, ledger logic.Ledger, cfg *config.Config) *gin.Engine {
	r := gin.Default()

	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "lancepay-settlement",
		})
	})

	// 业务逻辑装配
	notifier := notify.FromConfig(cfg.Notify)
	waterfallLogic := logic.NewWaterfallLogic(db, ledger, notifier, cfg.Waterfall.Concurrency)
	invoiceLogic := logic.NewInvoiceLogic(db, waterfallLogic)
	escrowLogic := logic.NewEscrowLogic(db, ledger, notifier, waterfallLogic, cfg.Escrow.FeeBps)
	collaboratorLogic := logic.NewCollaboratorLogic(db)
	fundingLogic := logic.NewFundingLogic(db, ledger, notifier, cfg.Funding)
	rescueLogic := logic.NewRescueLogic(db, ledger, cfg.Rescue)

	// API版本组
	v1 := r.Group("/api/v1")
	{
		// 发票与结算路由
		invoiceHandler := handler.NewInvoiceHandler(invoiceLogic)
		escrowHandler := handler.NewEscrowHandler(escrowLogic)
		collaboratorHandler := handler.NewCollaboratorHandler(collaboratorLogic, waterfallLogic)
		invoices := v1.Group("/invoices")
		{
			invoices.POST("", invoiceHandler.CreateInvoice)
			invoices.GET("", invoiceHandler.ListInvoices)
			invoices.GET("/:id", invoiceHandler.GetInvoice)
			invoices.POST("/:id/paid", invoiceHandler.MarkPaid)

			invoices.POST("/:id/escrow", escrowHandler.EnableEscrow)
			invoices.GET("/:id/escrow", escrowHandler.GetEscrow)
			invoices.GET("/:id/escrow/events", escrowHandler.ListEvents)
			invoices.POST("/:id/escrow/fund-tx", escrowHandler.ReportFunding)
			invoices.POST("/:id/escrow/release", escrowHandler.ReleaseEscrow)
			invoices.POST("/:id/escrow/dispute", escrowHandler.DisputeEscrow)
			invoices.POST("/:id/escrow/evidence", escrowHandler.SubmitEvidence)
			invoices.POST("/:id/escrow/resolve", escrowHandler.ResolveDispute)
			invoices.POST("/:id/escrow/refund", escrowHandler.RefundEscrow)

			invoices.POST("/:id/collaborators", collaboratorHandler.AddCollaborator)
			invoices.GET("/:id/collaborators", collaboratorHandler.ListCollaborators)
			invoices.PUT("/:id/collaborators/:sid", collaboratorHandler.UpdateShare)
			invoices.DELETE("/:id/collaborators/:sid", collaboratorHandler.RemoveCollaborator)
			invoices.POST("/:id/waterfall", collaboratorHandler.ProcessWaterfall)
		}

		// 钱包路由
		walletHandler := handler.NewWalletHandler(fundingLogic)
		wallets := v1.Group("/wallets")
		{
			wallets.POST("", walletHandler.CreateWallet)
			wallets.POST("/fund", walletHandler.FundWallet)
		}

		// 平台费路由
		feeHandler := handler.NewFeeHandler(cfg.Escrow.FeeBps)
		fees := v1.Group("/fees")
		{
			fees.POST("/split", feeHandler.ComputeSplit)
		}

		// 交易救援路由
		rescueHandler := handler.NewRescueHandler(rescueLogic)
		transactions := v1.Group("/transactions")
		{
			transactions.POST("/rescue", rescueHandler.Rescue)
		}
	}

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Verified-Email")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
