package logic

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/keypair"
	"gorm.io/gorm"

	"github.com/lancepay/lps/internal/config"
	"github.com/lancepay/lps/internal/feesplit"
	"github.com/lancepay/lps/internal/logger"
	"github.com/lancepay/lps/internal/model"
	"github.com/lancepay/lps/internal/notify"
	"github.com/lancepay/lps/internal/retry"
	"github.com/lancepay/lps/internal/stellar"
)

// FundingLogic 账户注资业务逻辑
type FundingLogic struct {
	db       *gorm.DB
	ledger   Ledger
	notifier notify.Notifier
	cfg      config.FundingConfig
	policy   retry.Policy
}

// NewFundingLogic 创建账户注资业务逻辑
func NewFundingLogic(db *gorm.DB, ledger Ledger, notifier notify.Notifier, cfg config.FundingConfig) *FundingLogic {
	return &FundingLogic{
		db:       db,
		ledger:   ledger,
		notifier: notifier,
		cfg:      cfg,
		policy: retry.Policy{
			MaxAttempts:    cfg.RetryMaxAttempts,
			InitialBackoff: cfg.RetryInitialBackoff,
			MaxBackoff:     cfg.RetryMaxBackoff,
			Jitter:         cfg.RetryJitter,
		},
	}
}

// FundingOptions 注资可选项
//
// Sponsored 走赞助储备金通道，需要新账户自己的密钥参与签名。
// DestSeed 只在内存里传递，绝不落库、绝不写日志。
type FundingOptions struct {
	Sponsored bool
	DestSeed  string
}

// FundingOutcome 注资结果
type FundingOutcome struct {
	Address    string              `json:"address"`
	Status     model.FundingStatus `json:"status"`
	TxHash     string              `json:"tx_hash,omitempty"`
	Attempts   int                 `json:"attempts"`
	LowBalance bool                `json:"low_balance"`
}

// NewWallet 托管钱包创建结果，Seed 只在这里出现一次
type NewWallet struct {
	Address string `json:"address"`
	Seed    string `json:"seed"`
}

// FundWallet 给账户注入初始余额
//
// 账户已存在视为成功（skipped），不是错误；瞬时失败按退避策略重试，
// 确定性失败立即放弃。
func (l *FundingLogic) FundWallet(ctx context.Context, address string, opts FundingOptions) (*FundingOutcome, error) {
	// 1. 校验地址
	if !stellar.IsValidAddress(address) {
		return nil, errors.New("账户地址无效")
	}
	var destKP *keypair.Full
	if opts.Sponsored {
		kp, err := keypair.ParseFull(opts.DestSeed)
		if err != nil {
			return nil, errors.New("账户密钥无效")
		}
		if kp.Address() != address {
			return nil, errors.New("账户密钥与地址不匹配")
		}
		destKP = kp
	}

	// 2. 预检：已存在直接返回 skipped
	_, err := l.ledger.LoadAccount(ctx, address)
	if err == nil {
		l.audit(address, model.FundingStatusSkipped, "", opts.Sponsored, 0, false, "")
		return &FundingOutcome{Address: address, Status: model.FundingStatusSkipped}, nil
	}
	if !errors.Is(err, stellar.ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to check account existence: %w", err)
	}

	// 3. 提交建户交易，瞬时错误重试；序列号过期时重建交易会重新加载账户
	attempts := 0
	txHash := ""
	err = l.policy.Do(ctx, func(attempt int) error {
		attempts = attempt
		var built *stellar.BuiltTx
		var berr error
		if opts.Sponsored {
			built, berr = l.ledger.BuildSponsoredCreateAccount(ctx, destKP)
		} else {
			built, berr = l.ledger.BuildCreateAccount(ctx, address, l.cfg.StartingBalance)
		}
		if berr != nil {
			return berr
		}
		res, serr := l.ledger.SubmitXDR(ctx, built.EnvelopeXdr)
		recordLedgerTx(l.db, built, model.LedgerTxKindCreateAccount, res, serr)
		if serr != nil {
			return serr
		}
		txHash = res.Hash
		return nil
	}, stellar.IsTransient)
	if err != nil {
		// 竞态：别人先建好了，同样算成功
		if errors.Is(err, stellar.ErrAccountExists) {
			l.audit(address, model.FundingStatusSkipped, "", opts.Sponsored, attempts, false, "")
			return &FundingOutcome{Address: address, Status: model.FundingStatusSkipped, Attempts: attempts}, nil
		}
		l.audit(address, model.FundingStatusFailed, "", opts.Sponsored, attempts, false, stellar.ReasonCode(err))
		return nil, fmt.Errorf("failed to fund account: %w", err)
	}

	// 4. 注资成功后检查资金池水位，只告警不影响结果
	low := l.reserveLow(ctx)
	l.audit(address, model.FundingStatusFunded, txHash, opts.Sponsored, attempts, low, "")

	logger.Info("Account %s funded: tx=%s attempts=%d", address, txHash, attempts)
	return &FundingOutcome{
		Address:    address,
		Status:     model.FundingStatusFunded,
		TxHash:     txHash,
		Attempts:   attempts,
		LowBalance: low,
	}, nil
}

// CreateWallet 创建托管钱包：生成密钥、赞助注资、建立 USDC 信任线
//
// 返回值里的 Seed 只出现这一次，服务端不保留。
func (l *FundingLogic) CreateWallet(ctx context.Context) (*NewWallet, error) {
	kp, err := keypair.Random()
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}

	outcome, err := l.FundWallet(ctx, kp.Address(), FundingOptions{Sponsored: true, DestSeed: kp.Seed()})
	if err != nil {
		return nil, err
	}

	// 信任线：结算资产是原生币时不需要
	trustTx, err := l.ledger.BuildChangeTrust(ctx, kp)
	if err != nil {
		return nil, fmt.Errorf("failed to build trustline transaction: %w", err)
	}
	if trustTx != nil {
		err = l.policy.Do(ctx, func(int) error {
			res, serr := l.ledger.SubmitXDR(ctx, trustTx.EnvelopeXdr)
			recordLedgerTx(l.db, trustTx, model.LedgerTxKindChangeTrust, res, serr)
			return serr
		}, stellar.IsTransient)
		if err != nil {
			return nil, fmt.Errorf("failed to submit trustline transaction: %w", err)
		}
	}

	logger.Info("Wallet %s created: funding=%s", kp.Address(), outcome.Status)
	return &NewWallet{Address: kp.Address(), Seed: kp.Seed()}, nil
}

// CheckReserve 巡检资金池水位，低于告警线返回 true
func (l *FundingLogic) CheckReserve(ctx context.Context) bool {
	return l.reserveLow(ctx)
}

// reserveLow 检查注资资金池的原生余额是否低于告警线
func (l *FundingLogic) reserveLow(ctx context.Context) bool {
	minReserve, err := decimal.NewFromString(l.cfg.MinReserve)
	if err != nil || !minReserve.IsPositive() {
		return false
	}
	minStroops, err := feesplit.UnitsToStroops(minReserve)
	if err != nil {
		return false
	}
	account, err := l.ledger.LoadAccount(ctx, l.ledger.FundingAddress())
	if err != nil {
		logger.Warn("Failed to check funding reserve: %v", err)
		return false
	}
	if account.NativeStroops >= minStroops {
		return false
	}
	logger.Warn("Funding reserve below threshold: balance=%d stroops min=%d stroops", account.NativeStroops, minStroops)
	notify.Dispatch(l.notifier, notify.Event{
		Kind: notify.KindWalletLowBalance,
		Payload: map[string]interface{}{
			"address":         l.ledger.FundingAddress(),
			"balance_stroops": account.NativeStroops,
			"min_stroops":     minStroops,
		},
	})
	return true
}

// audit 写注资审计记录
func (l *FundingLogic) audit(address string, status model.FundingStatus, txHash string, sponsored bool, attempts int, low bool, failReason string) {
	row := &model.WalletFundingModel{
		Address:         address,
		Status:          status,
		Sponsored:       sponsored,
		TxHash:          txHash,
		Attempts:        attempts,
		StartingBalance: l.cfg.StartingBalance,
		LowBalance:      low,
		FailReason:      failReason,
	}
	if err := l.db.Create(row).Error; err != nil {
		logger.Error("Failed to record wallet funding for %s: %v", address, err)
	}
}
