package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lancepay/lps/internal/feesplit"
	"github.com/lancepay/lps/internal/logic"
	"github.com/lancepay/lps/internal/stellar"
)

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// FailResponse 按错误类别映射状态码：
// 业务校验 400、越权 403、找不到 404、状态冲突 409、
// 账本瞬时故障 502、账本确定性拒绝 422
func FailResponse(c *gin.Context, err error) {
	switch {
	case errors.Is(err, logic.ErrInvoiceNotFound),
		errors.Is(err, logic.ErrEscrowNotFound),
		errors.Is(err, logic.ErrShareNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, logic.ErrNotAuthorized):
		ErrorResponse(c, http.StatusForbidden, err.Error())
		return
	case errors.Is(err, logic.ErrStateConflict):
		ErrorResponse(c, http.StatusConflict, err.Error())
		return
	}

	var overErr *feesplit.OverAllocationError
	if errors.As(err, &overErr) {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Message: overErr.Error(),
			Data:    gin.H{"total_percent": overErr.Total},
		})
		return
	}

	switch stellar.ClassOf(err) {
	case stellar.ClassAuthorization:
		ErrorResponse(c, http.StatusForbidden, err.Error())
	case stellar.ClassConflict:
		ErrorResponse(c, http.StatusConflict, err.Error())
	case stellar.ClassTransient:
		ErrorResponse(c, http.StatusBadGateway, err.Error())
	case stellar.ClassDeterministic:
		ErrorResponse(c, http.StatusUnprocessableEntity, err.Error())
	default:
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	}
}

// verifiedEmail 上游认证网关注入的已验证邮箱
func verifiedEmail(c *gin.Context) string {
	return c.GetHeader("X-Verified-Email")
}
