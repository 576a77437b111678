package logic

import (
	"context"

	"github.com/stellar/go/keypair"

	"github.com/lancepay/lps/internal/stellar"
)

// Ledger 结算逻辑依赖的账本操作
//
// 生产环境由 stellar.Client 实现，测试里用假账本替换。
type Ledger interface {
	LoadAccount(ctx context.Context, address string) (*stellar.Account, error)
	SubmitXDR(ctx context.Context, envelopeXdr string) (*stellar.SubmitResult, error)
	Transaction(ctx context.Context, hash string) (*stellar.TxStatus, error)
	BaseFee(ctx context.Context) (int64, error)

	FundingAddress() string
	PlatformAddress() string
	ArbiterAddress() string
	AssetCode() string

	BuildCreateAccount(ctx context.Context, destination, startingBalance string) (*stellar.BuiltTx, error)
	BuildSponsoredCreateAccount(ctx context.Context, destKP *keypair.Full) (*stellar.BuiltTx, error)
	BuildPayment(ctx context.Context, destination string, amountStroops int64, memoHash [32]byte) (*stellar.BuiltTx, error)
	BuildChangeTrust(ctx context.Context, accountKP *keypair.Full) (*stellar.BuiltTx, error)
	BuildFeeBump(innerEnvelopeXdr string, maxFeePerOp int64) (*stellar.BuiltTx, error)
	InnerTxHash(envelopeXdr string) (string, error)

	EscrowContractID(invoiceId int64) (string, error)
	BuildEscrowDeploy(ctx context.Context, invoiceId int64) (*stellar.BuiltTx, error)
	BuildEscrowInit(ctx context.Context, contractID string, init stellar.EscrowInit) (*stellar.BuiltTx, error)
	BuildEscrowRelease(ctx context.Context, contractID string) (*stellar.BuiltTx, error)
	BuildEscrowRefund(ctx context.Context, contractID string) (*stellar.BuiltTx, error)
	BuildEscrowDispute(ctx context.Context, contractID string) (*stellar.BuiltTx, error)
	BuildEscrowAdjudicate(ctx context.Context, contractID string, freelancerBps uint32) (*stellar.BuiltTx, error)
}
