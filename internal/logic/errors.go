package logic

import "errors"

// 各业务逻辑共用的错误
var (
	ErrInvoiceNotFound = errors.New("发票不存在")
	ErrEscrowNotFound  = errors.New("托管合约不存在")
	ErrShareNotFound   = errors.New("分成记录不存在")
	ErrNotAuthorized   = errors.New("无权执行此操作")
	ErrStateConflict   = errors.New("状态已变更，请刷新后重试")
)
