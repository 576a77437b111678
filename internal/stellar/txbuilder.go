package stellar

import (
	"context"
	"fmt"

	"github.com/stellar/go/amount"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
)

// txTimeoutSeconds 交易时间边界，超过后无法再被打包
const txTimeoutSeconds = 300

// loadSourceAccount 加载源账户当前序列号
func (c *Client) loadSourceAccount(ctx context.Context, address string) (*txnbuild.SimpleAccount, error) {
	account, err := c.LoadAccount(ctx, address)
	if err != nil {
		return nil, err
	}
	return &txnbuild.SimpleAccount{AccountID: account.Address, Sequence: account.Sequence}, nil
}

// buildAndSign 组装并签名交易
//
// 每次调用都从 Horizon 取最新序列号，tx_bad_seq 重试时
// 重新构建即可拿到新序列。
func (c *Client) buildAndSign(ctx context.Context, sourceAddress string, memo txnbuild.Memo,
	ops []txnbuild.Operation, signers ...*keypair.Full) (*BuiltTx, error) {

	source, err := c.loadSourceAccount(ctx, sourceAddress)
	if err != nil {
		return nil, err
	}
	baseFee, err := c.BaseFee(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        source,
		IncrementSequenceNum: true,
		Operations:           ops,
		BaseFee:              baseFee,
		Memo:                 memo,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(txTimeoutSeconds)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	tx, err = tx.Sign(c.networkPassphrase, signers...)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	envelope, err := tx.Base64()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	hash, err := tx.HashHex(c.networkPassphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to hash transaction: %w", err)
	}
	return &BuiltTx{Hash: hash, EnvelopeXdr: envelope}, nil
}

// BuildCreateAccount 构建普通开户交易，初始余额由资金账户出
func (c *Client) BuildCreateAccount(ctx context.Context, destination, startingBalance string) (*BuiltTx, error) {
	ops := []txnbuild.Operation{
		&txnbuild.CreateAccount{
			Destination: destination,
			Amount:      startingBalance,
		},
	}
	return c.buildAndSign(ctx, c.fundingKP.Address(), nil, ops, c.fundingKP)
}

// BuildSponsoredCreateAccount 构建赞助储备开户交易
//
// begin-sponsor / create-account / end-sponsor 三件套，
// 新账户不占用自身储备；需要赞助方和新账户双方签名。
func (c *Client) BuildSponsoredCreateAccount(ctx context.Context, destKP *keypair.Full) (*BuiltTx, error) {
	destination := destKP.Address()
	ops := []txnbuild.Operation{
		&txnbuild.BeginSponsoringFutureReserves{
			SponsoredID: destination,
		},
		&txnbuild.CreateAccount{
			Destination: destination,
			Amount:      "0",
		},
		&txnbuild.EndSponsoringFutureReserves{
			SourceAccount: destination,
		},
	}
	return c.buildAndSign(ctx, c.fundingKP.Address(), nil, ops, c.fundingKP, destKP)
}

// BuildPayment 构建平台账户发出的结算资产付款
//
// memoHash 携带幂等令牌摘要，同一令牌重复提交可在链上对账。
func (c *Client) BuildPayment(ctx context.Context, destination string, amountStroops int64, memoHash [32]byte) (*BuiltTx, error) {
	if amountStroops <= 0 {
		return nil, &Error{Class: ClassValidation, Reason: "non_positive_amount"}
	}
	ops := []txnbuild.Operation{
		&txnbuild.Payment{
			Destination: destination,
			Amount:      amount.StringFromInt64(amountStroops),
			Asset:       c.usdc,
		},
	}
	return c.buildAndSign(ctx, c.platformKP.Address(), txnbuild.MemoHash(memoHash), ops, c.platformKP)
}

// BuildChangeTrust 构建新钱包的结算资产信任线
//
// 结算资产是原生资产时无需信任线，返回 (nil, nil)。
func (c *Client) BuildChangeTrust(ctx context.Context, accountKP *keypair.Full) (*BuiltTx, error) {
	creditAsset, ok := c.usdc.(txnbuild.CreditAsset)
	if !ok {
		return nil, nil
	}
	ops := []txnbuild.Operation{
		&txnbuild.ChangeTrust{
			Line:  txnbuild.ChangeTrustAssetWrapper{Asset: creditAsset},
			Limit: txnbuild.MaxTrustlineLimit,
		},
	}
	return c.buildAndSign(ctx, accountKP.Address(), nil, ops, accountKP)
}

// InnerTxHash 计算普通交易信封在当前网络下的哈希
func (c *Client) InnerTxHash(envelopeXdr string) (string, error) {
	generic, err := txnbuild.TransactionFromXDR(envelopeXdr)
	if err != nil {
		return "", &Error{Class: ClassValidation, Reason: "malformed_envelope", cause: err}
	}
	inner, ok := generic.Transaction()
	if !ok {
		return "", &Error{Class: ClassValidation, Reason: "already_fee_bumped"}
	}
	hash, err := inner.HashHex(c.networkPassphrase)
	if err != nil {
		return "", fmt.Errorf("failed to hash transaction: %w", err)
	}
	return hash, nil
}

// BuildFeeBump 对卡住的交易做一次费用置换
//
// maxFeePerOp 是置换后的单操作费上限（stroop）。
func (c *Client) BuildFeeBump(innerEnvelopeXdr string, maxFeePerOp int64) (*BuiltTx, error) {
	generic, err := txnbuild.TransactionFromXDR(innerEnvelopeXdr)
	if err != nil {
		return nil, &Error{Class: ClassValidation, Reason: "malformed_envelope", cause: err}
	}
	inner, ok := generic.Transaction()
	if !ok {
		return nil, &Error{Class: ClassValidation, Reason: "already_fee_bumped"}
	}

	feeBump, err := txnbuild.NewFeeBumpTransaction(txnbuild.FeeBumpTransactionParams{
		Inner:      inner,
		FeeAccount: c.platformKP.Address(),
		BaseFee:    maxFeePerOp,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build fee bump transaction: %w", err)
	}
	feeBump, err = feeBump.Sign(c.networkPassphrase, c.platformKP)
	if err != nil {
		return nil, fmt.Errorf("failed to sign fee bump transaction: %w", err)
	}

	envelope, err := feeBump.Base64()
	if err != nil {
		return nil, fmt.Errorf("failed to encode fee bump transaction: %w", err)
	}
	hash, err := feeBump.HashHex(c.networkPassphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to hash fee bump transaction: %w", err)
	}
	return &BuiltTx{Hash: hash, EnvelopeXdr: envelope}, nil
}
