package stellar

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/support/render/problem"
	"github.com/stretchr/testify/require"
)

// submitError 按 Horizon 的响应格式构造提交失败错误
func submitError(status int, txCode string, opCodes ...string) error {
	resultCodes := map[string]interface{}{"transaction": txCode}
	if len(opCodes) > 0 {
		resultCodes["operations"] = opCodes
	}
	return &horizonclient.Error{
		Problem: problem.P{
			Status: status,
			Extras: map[string]interface{}{"result_codes": resultCodes},
		},
	}
}

func requireClassified(t *testing.T, err error, class Class, reason string) *Error {
	t.Helper()
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, class, lerr.Class)
	require.Equal(t, reason, lerr.Reason)
	return lerr
}

func TestClassifyTransactionCodes(t *testing.T) {
	// 序列号过期和费用不足都可重试
	requireClassified(t, classify(submitError(400, "tx_bad_seq")), ClassTransient, "tx_bad_seq")
	requireClassified(t, classify(submitError(400, "tx_insufficient_fee")), ClassTransient, "tx_insufficient_fee")

	// 签名问题归为越权，重试无意义
	requireClassified(t, classify(submitError(400, "tx_bad_auth")), ClassAuthorization, "tx_bad_auth")
	requireClassified(t, classify(submitError(400, "tx_bad_auth_extra")), ClassAuthorization, "tx_bad_auth_extra")

	// 其余交易码确定性失败
	lerr := requireClassified(t, classify(submitError(400, "tx_too_late")), ClassDeterministic, "tx_too_late")
	require.Equal(t, 400, lerr.Status)
}

func TestClassifyOperationCodes(t *testing.T) {
	// tx_failed 时取第一个非成功操作码作为原因
	requireClassified(t, classify(submitError(400, "tx_failed", "op_underfunded")),
		ClassDeterministic, "op_underfunded")
	requireClassified(t, classify(submitError(400, "tx_failed", "op_success", "op_no_destination")),
		ClassDeterministic, "op_no_destination")
}

func TestClassifyAccountExists(t *testing.T) {
	// 重复开户是冲突，携带 ErrAccountExists 供幂等跳过
	err := classify(submitError(400, "tx_failed", "op_already_exists"))
	requireClassified(t, err, ClassConflict, "op_already_exists")
	require.ErrorIs(t, err, ErrAccountExists)

	// 旧版 Horizon 的单数拼写同样识别
	err = classify(submitError(400, "tx_failed", "op_already_exist"))
	requireClassified(t, err, ClassConflict, "op_already_exist")
	require.ErrorIs(t, err, ErrAccountExists)
}

func TestClassifyHTTPStatus(t *testing.T) {
	notFound := classify(&horizonclient.Error{Problem: problem.P{Status: 404}})
	requireClassified(t, notFound, ClassValidation, "not_found")
	require.ErrorIs(t, notFound, ErrAccountNotFound)

	// 限流和网关故障可重试
	requireClassified(t, classify(&horizonclient.Error{Problem: problem.P{Status: 429}}), ClassTransient, "http_429")
	requireClassified(t, classify(&horizonclient.Error{Problem: problem.P{Status: 503}}), ClassTransient, "http_503")
	requireClassified(t, classify(&horizonclient.Error{Problem: problem.P{Status: 500}}), ClassTransient, "http_500")

	// 4xx 且拿不到结果码时按状态码归为确定性失败
	requireClassified(t, classify(&horizonclient.Error{Problem: problem.P{Status: 400}}), ClassDeterministic, "http_400")
}

func TestClassifyContextAndNetwork(t *testing.T) {
	require.Nil(t, classify(nil))

	// 调用方取消/超时按瞬时处理
	requireClassified(t, classify(context.Canceled), ClassTransient, "timeout")
	requireClassified(t, classify(fmt.Errorf("submit: %w", context.DeadlineExceeded)), ClassTransient, "timeout")

	// 非 Horizon 错误一律按网络故障重试
	requireClassified(t, classify(errors.New("connection refused")), ClassTransient, "network_error")
}

func TestClassifyPreservesCause(t *testing.T) {
	cause := submitError(400, "tx_failed", "op_underfunded")
	err := classify(cause)
	require.ErrorIs(t, err, cause)
}

func TestErrorHelpers(t *testing.T) {
	transient := NewError(ClassTransient, "tx_bad_seq", nil)
	require.Equal(t, "ledger transient error: tx_bad_seq", transient.Error())

	require.True(t, IsTransient(transient))
	require.True(t, IsTransient(fmt.Errorf("submit: %w", transient)))
	require.False(t, IsTransient(errors.New("plain")))
	require.False(t, IsTransient(NewError(ClassDeterministic, "op_underfunded", nil)))

	require.True(t, IsStaleSequence(transient))
	require.False(t, IsStaleSequence(NewError(ClassTransient, "tx_insufficient_fee", nil)))

	require.Equal(t, ClassTransient, ClassOf(transient))
	require.Equal(t, Class(""), ClassOf(errors.New("plain")))

	require.Equal(t, "tx_bad_seq", ReasonCode(transient))
	require.Equal(t, "plain", ReasonCode(errors.New("plain")))
	require.Equal(t, "", ReasonCode(nil))
}
