package stellar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lancepay/lps/internal/cache"
	"github.com/lancepay/lps/internal/config"
	"github.com/stellar/go/amount"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
)

const baseFeeCacheKey = "base_fee"

// MinBaseFee 网络允许的最低单操作费（stroop）
const MinBaseFee = txnbuild.MinBaseFee

// Client Stellar 账本客户端
//
// 封装 Horizon：账户查询、交易提交与构建、托管合约操作。
// 资金账户负责开户和合约部署，平台账户负责分账付款、
// 费用置换以及托管合约的代理调用。
type Client struct {
	horizon           horizonclient.ClientInterface
	networkPassphrase string
	fundingKP         *keypair.Full
	platformKP        *keypair.Full
	arbiterAddress    string
	usdc              txnbuild.Asset
	escrowWasmHash    string
	baseFees          *cache.TTLCache
}

// Account 账户快照
type Account struct {
	Address       string
	Sequence      int64
	NativeStroops int64
	Balances      []Balance
}

// Balance 单个资产余额
type Balance struct {
	AssetCode   string
	AssetIssuer string
	Stroops     int64
}

// SubmitResult 提交结果
type SubmitResult struct {
	Hash       string
	Ledger     int32
	Successful bool
	FeeCharged int64
}

// TxStatus 链上交易状态
type TxStatus struct {
	Hash       string
	Successful bool
	Ledger     int32
	FeeCharged int64
}

// BuiltTx 已签名待提交的交易
type BuiltTx struct {
	Hash        string
	EnvelopeXdr string
}

func Init(cfg config.StellarConfig, feeCache *cache.TTLCache) (*Client, error) {
	fundingKP, err := keypair.ParseFull(cfg.FundingSeed)
	if err != nil {
		return nil, fmt.Errorf("failed to parse funding seed: %w", err)
	}
	platformKP, err := keypair.ParseFull(cfg.PlatformSeed)
	if err != nil {
		return nil, fmt.Errorf("failed to parse platform seed: %w", err)
	}

	var usdc txnbuild.Asset = txnbuild.NativeAsset{}
	if cfg.UsdcIssuer != "" {
		if !strkey.IsValidEd25519PublicKey(cfg.UsdcIssuer) {
			return nil, fmt.Errorf("invalid asset issuer address: %s", cfg.UsdcIssuer)
		}
		usdc = txnbuild.CreditAsset{Code: cfg.UsdcCode, Issuer: cfg.UsdcIssuer}
	}

	arbiter := cfg.ArbiterAddress
	if arbiter == "" {
		arbiter = platformKP.Address()
	} else if !strkey.IsValidEd25519PublicKey(arbiter) {
		return nil, fmt.Errorf("invalid arbiter address: %s", arbiter)
	}

	horizon := &horizonclient.Client{
		HorizonURL: cfg.HorizonURL,
		HTTP:       http.DefaultClient,
	}
	horizon.SetHorizonTimeout(30 * time.Second)

	return &Client{
		horizon:           horizon,
		networkPassphrase: cfg.NetworkPassphrase,
		fundingKP:         fundingKP,
		platformKP:        platformKP,
		arbiterAddress:    arbiter,
		usdc:              usdc,
		escrowWasmHash:    cfg.EscrowWasmHash,
		baseFees:          feeCache,
	}, nil
}

// FundingAddress 资金账户地址
func (c *Client) FundingAddress() string {
	return c.fundingKP.Address()
}

// PlatformAddress 平台账户地址
func (c *Client) PlatformAddress() string {
	return c.platformKP.Address()
}

// ArbiterAddress 仲裁账户地址
func (c *Client) ArbiterAddress() string {
	return c.arbiterAddress
}

// AssetCode 结算资产代码
func (c *Client) AssetCode() string {
	if asset, ok := c.usdc.(txnbuild.CreditAsset); ok {
		return asset.Code
	}
	return "XLM"
}

// IsValidAddress 校验账户地址格式
func IsValidAddress(address string) bool {
	return strkey.IsValidEd25519PublicKey(address)
}

// LoadAccount 加载账户，不存在时返回 ErrAccountNotFound
func (c *Client) LoadAccount(ctx context.Context, address string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	record, err := c.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: address})
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return nil, ErrAccountNotFound
		}
		return nil, classify(err)
	}

	account := &Account{Address: record.AccountID, Sequence: record.Sequence}
	for _, b := range record.Balances {
		stroops, parseErr := amount.ParseInt64(b.Balance)
		if parseErr != nil {
			continue
		}
		if b.Asset.Type == "native" {
			account.NativeStroops = stroops
		}
		account.Balances = append(account.Balances, Balance{
			AssetCode:   b.Asset.Code,
			AssetIssuer: b.Asset.Issuer,
			Stroops:     stroops,
		})
	}
	return account, nil
}

// AccountExists 检查账户是否已在链上
func (c *Client) AccountExists(ctx context.Context, address string) (bool, error) {
	_, err := c.LoadAccount(ctx, address)
	if err == nil {
		return true, nil
	}
	if err == ErrAccountNotFound {
		return false, nil
	}
	return false, err
}

// SubmitXDR 提交已签名交易，失败时返回分类后的错误
func (c *Client) SubmitXDR(ctx context.Context, envelopeXdr string) (*SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := c.horizon.SubmitTransactionXDR(envelopeXdr)
	if err != nil {
		return nil, classify(err)
	}
	return &SubmitResult{
		Hash:       resp.Hash,
		Ledger:     resp.Ledger,
		Successful: resp.Successful,
		FeeCharged: resp.FeeCharged,
	}, nil
}

// Transaction 查询交易状态
func (c *Client) Transaction(ctx context.Context, hash string) (*TxStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	record, err := c.horizon.TransactionDetail(hash)
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return nil, ErrTxNotFound
		}
		return nil, classify(err)
	}
	return &TxStatus{
		Hash:       record.Hash,
		Successful: record.Successful,
		Ledger:     record.Ledger,
		FeeCharged: record.FeeCharged,
	}, nil
}

// BaseFee 当前网络基础费（stroop），经 TTL 缓存
//
// Horizon 不可用时退回协议最低费，避免基础费查询阻塞结算。
func (c *Client) BaseFee(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	v, err := c.baseFees.GetOrLoad(baseFeeCacheKey, func() (interface{}, error) {
		stats, fetchErr := c.horizon.FeeStats()
		if fetchErr != nil {
			return nil, classify(fetchErr)
		}
		return stats.LastLedgerBaseFee, nil
	})
	if err != nil {
		return txnbuild.MinBaseFee, nil
	}
	return v.(int64), nil
}
