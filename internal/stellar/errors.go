package stellar

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stellar/go/clients/horizonclient"
)

// Class 账本错误类别
//
// transient 可安全重试；deterministic 重试也必然失败；
// conflict 表示状态竞争；validation/authorization 是调用方问题。
type Class string

const (
	ClassValidation    Class = "validation"
	ClassAuthorization Class = "authorization"
	ClassConflict      Class = "conflict"
	ClassTransient     Class = "transient"
	ClassDeterministic Class = "deterministic"
)

var (
	ErrAccountNotFound = errors.New("账户不存在")
	ErrAccountExists   = errors.New("账户已存在")
	ErrTxNotFound      = errors.New("交易不存在")
)

// Error 分类后的账本错误
//
// Reason 是机器可读原因码（Horizon 结果码或 HTTP 状态），
// 永远不携带签名私钥等敏感信息。
type Error struct {
	Class  Class
	Reason string
	Status int
	cause  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ledger %s error: %s", e.Class, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError 构造分类账本错误，账本接口的其它实现（含测试桩）用它模拟提交结果
func NewError(class Class, reason string, cause error) *Error {
	return &Error{Class: class, Reason: reason, cause: cause}
}

// IsTransient 判断错误是否可重试
func IsTransient(err error) bool {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Class == ClassTransient
	}
	return false
}

// IsStaleSequence 判断是否序列号过期，重试前需要重新加载账户
func IsStaleSequence(err error) bool {
	var lerr *Error
	return errors.As(err, &lerr) && lerr.Reason == "tx_bad_seq"
}

// ClassOf 提取错误类别，非账本错误返回空
func ClassOf(err error) Class {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Class
	}
	return ""
}

// ReasonCode 提取机器可读原因码，没有则返回错误文本
func ReasonCode(err error) string {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Reason
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// classify 把 Horizon 提交错误映射到错误类别
//
// 规则：
//   - op_already_exist* → ErrAccountExists（幂等跳过，不算失败）
//   - tx_bad_seq / tx_insufficient_fee / 429 / 5xx / 网络超时 → transient
//   - tx_bad_auth* / op_underfunded / op_low_reserve 等 → deterministic
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Class: ClassTransient, Reason: "timeout", cause: err}
	}

	herr := horizonclient.GetError(err)
	if herr == nil {
		// 非 Horizon 错误按网络故障处理
		return &Error{Class: ClassTransient, Reason: "network_error", cause: err}
	}

	status := herr.Problem.Status
	switch {
	case status == 404:
		return &Error{Class: ClassValidation, Reason: "not_found", Status: status, cause: ErrAccountNotFound}
	case status == 429 || status == 503 || status == 504:
		return &Error{Class: ClassTransient, Reason: fmt.Sprintf("http_%d", status), Status: status, cause: err}
	case status >= 500:
		return &Error{Class: ClassTransient, Reason: fmt.Sprintf("http_%d", status), Status: status, cause: err}
	}

	codes, codesErr := herr.ResultCodes()
	if codesErr != nil {
		return &Error{Class: ClassDeterministic, Reason: fmt.Sprintf("http_%d", status), Status: status, cause: err}
	}

	for _, op := range codes.OperationCodes {
		// 同时覆盖 op_already_exist 和 op_already_exists 两种拼写
		if strings.HasPrefix(op, "op_already_exist") {
			return &Error{Class: ClassConflict, Reason: op, Status: status, cause: ErrAccountExists}
		}
	}

	reason := codes.TransactionCode
	if reason == "tx_failed" && len(codes.OperationCodes) > 0 {
		for _, op := range codes.OperationCodes {
			if op != "op_success" {
				reason = op
				break
			}
		}
	}

	switch codes.TransactionCode {
	case "tx_bad_seq", "tx_insufficient_fee":
		return &Error{Class: ClassTransient, Reason: codes.TransactionCode, Status: status, cause: err}
	case "tx_bad_auth", "tx_bad_auth_extra":
		return &Error{Class: ClassAuthorization, Reason: codes.TransactionCode, Status: status, cause: err}
	}
	return &Error{Class: ClassDeterministic, Reason: reason, Status: status, cause: err}
}
