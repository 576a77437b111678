package logic_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/lancepay/lps/internal/model"
	"github.com/lancepay/lps/internal/notify"
	"github.com/lancepay/lps/internal/repository"
	"github.com/lancepay/lps/internal/stellar"
)

// newTestDB 每个测试一个独立的内存库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		NamingStrategy: &schema.NamingStrategy{SingularTable: true},
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repository.Migrate(db))
	return db
}

// fakeHash 由信封内容确定性派生交易哈希，构建和提交两侧保持一致
func fakeHash(envelope string) string {
	sum := sha256.Sum256([]byte(envelope))
	return hex.EncodeToString(sum[:])
}

// fakeLedger 可编程的账本假实现
//
// 交易信封用 "动作:参数" 的明文串表示，测试按前缀断言提交内容。
type fakeLedger struct {
	mu         sync.Mutex
	accounts   map[string]*stellar.Account
	txs        map[string]*stellar.TxStatus
	submits    []string
	onSubmit   func(envelope string) error // 返回非 nil 则该笔提交失败
	baseFee    int64
	lastMaxFee int64

	funding  string
	platform string
	arbiter  string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		accounts: make(map[string]*stellar.Account),
		txs:      make(map[string]*stellar.TxStatus),
		baseFee:  100,
		funding:  keypair.MustRandom().Address(),
		platform: keypair.MustRandom().Address(),
		arbiter:  keypair.MustRandom().Address(),
	}
}

func (f *fakeLedger) setAccount(address string, nativeStroops int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[address] = &stellar.Account{Address: address, NativeStroops: nativeStroops}
}

func (f *fakeLedger) setTx(hash string, successful bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[hash] = &stellar.TxStatus{Hash: hash, Successful: successful, Ledger: 1, FeeCharged: 100}
}

func (f *fakeLedger) setOnSubmit(fn func(envelope string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSubmit = fn
}

func (f *fakeLedger) submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.submits))
	copy(out, f.submits)
	return out
}

func (f *fakeLedger) submittedWithPrefix(prefix string) []string {
	var out []string
	for _, env := range f.submitted() {
		if strings.HasPrefix(env, prefix) {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeLedger) LoadAccount(_ context.Context, address string) (*stellar.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if acct, ok := f.accounts[address]; ok {
		return acct, nil
	}
	return nil, stellar.ErrAccountNotFound
}

func (f *fakeLedger) SubmitXDR(_ context.Context, envelope string) (*stellar.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onSubmit != nil {
		if err := f.onSubmit(envelope); err != nil {
			return nil, err
		}
	}
	for _, prefix := range []string{"create:", "sponsor:"} {
		dest, ok := strings.CutPrefix(envelope, prefix)
		if !ok {
			continue
		}
		// 建户撞已有账户与链上行为一致：冲突错误
		if _, exists := f.accounts[dest]; exists {
			return nil, stellar.NewError(stellar.ClassConflict, "op_already_exists", stellar.ErrAccountExists)
		}
		f.accounts[dest] = &stellar.Account{Address: dest, NativeStroops: 20_000_000}
	}
	f.submits = append(f.submits, envelope)
	return &stellar.SubmitResult{Hash: fakeHash(envelope), Ledger: 1, Successful: true, FeeCharged: 100}, nil
}

func (f *fakeLedger) Transaction(_ context.Context, hash string) (*stellar.TxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx, ok := f.txs[hash]; ok {
		return tx, nil
	}
	return nil, stellar.ErrTxNotFound
}

func (f *fakeLedger) BaseFee(_ context.Context) (int64, error) {
	return f.baseFee, nil
}

func (f *fakeLedger) FundingAddress() string  { return f.funding }
func (f *fakeLedger) PlatformAddress() string { return f.platform }
func (f *fakeLedger) ArbiterAddress() string  { return f.arbiter }
func (f *fakeLedger) AssetCode() string       { return "USDC" }

func (f *fakeLedger) built(envelope string) (*stellar.BuiltTx, error) {
	return &stellar.BuiltTx{Hash: fakeHash(envelope), EnvelopeXdr: envelope}, nil
}

func (f *fakeLedger) BuildCreateAccount(_ context.Context, destination, _ string) (*stellar.BuiltTx, error) {
	return f.built("create:" + destination)
}

func (f *fakeLedger) BuildSponsoredCreateAccount(_ context.Context, destKP *keypair.Full) (*stellar.BuiltTx, error) {
	return f.built("sponsor:" + destKP.Address())
}

func (f *fakeLedger) BuildPayment(_ context.Context, destination string, amountStroops int64, _ [32]byte) (*stellar.BuiltTx, error) {
	return f.built(fmt.Sprintf("pay:%s:%d", destination, amountStroops))
}

func (f *fakeLedger) BuildChangeTrust(_ context.Context, accountKP *keypair.Full) (*stellar.BuiltTx, error) {
	return f.built("trust:" + accountKP.Address())
}

func (f *fakeLedger) BuildFeeBump(innerEnvelopeXdr string, maxFeePerOp int64) (*stellar.BuiltTx, error) {
	if strings.HasPrefix(innerEnvelopeXdr, "bump:") {
		return nil, stellar.NewError(stellar.ClassValidation, "already_fee_bumped", nil)
	}
	f.mu.Lock()
	f.lastMaxFee = maxFeePerOp
	f.mu.Unlock()
	return f.built(fmt.Sprintf("bump:%d:%s", maxFeePerOp, innerEnvelopeXdr))
}

func (f *fakeLedger) InnerTxHash(envelopeXdr string) (string, error) {
	if strings.HasPrefix(envelopeXdr, "bump:") {
		return "", stellar.NewError(stellar.ClassValidation, "already_fee_bumped", nil)
	}
	return fakeHash(envelopeXdr), nil
}

func (f *fakeLedger) EscrowContractID(invoiceId int64) (string, error) {
	return fmt.Sprintf("CESCROW%d", invoiceId), nil
}

func (f *fakeLedger) BuildEscrowDeploy(_ context.Context, invoiceId int64) (*stellar.BuiltTx, error) {
	return f.built(fmt.Sprintf("deploy:%d", invoiceId))
}

func (f *fakeLedger) BuildEscrowInit(_ context.Context, contractID string, init stellar.EscrowInit) (*stellar.BuiltTx, error) {
	return f.built(fmt.Sprintf("init:%s:%d", contractID, init.AmountStroops))
}

func (f *fakeLedger) BuildEscrowRelease(_ context.Context, contractID string) (*stellar.BuiltTx, error) {
	return f.built("release:" + contractID)
}

func (f *fakeLedger) BuildEscrowRefund(_ context.Context, contractID string) (*stellar.BuiltTx, error) {
	return f.built("refund:" + contractID)
}

func (f *fakeLedger) BuildEscrowDispute(_ context.Context, contractID string) (*stellar.BuiltTx, error) {
	return f.built("dispute:" + contractID)
}

func (f *fakeLedger) BuildEscrowAdjudicate(_ context.Context, contractID string, freelancerBps uint32) (*stellar.BuiltTx, error) {
	return f.built(fmt.Sprintf("adjudicate:%s:%d", contractID, freelancerBps))
}

// failingNotifier 投递永远失败，用来验证失败兜底路径
type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, notify.Event) error {
	return errors.New("webhook down")
}

func seedUser(t *testing.T, db *gorm.DB, email, wallet string, role model.UserRole) *model.UserModel {
	t.Helper()
	user := &model.UserModel{Email: email, WalletAddress: wallet, Role: role}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedInvoice(t *testing.T, db *gorm.DB, owner *model.UserModel, clientEmail, amount string) *model.InvoiceModel {
	t.Helper()
	invoice := &model.InvoiceModel{
		OwnerId:     owner.Id,
		OwnerEmail:  owner.Email,
		ClientEmail: clientEmail,
		Title:       "website redesign",
		Amount:      decimal.RequireFromString(amount),
		Status:      model.InvoiceStatusUnpaid,
	}
	require.NoError(t, db.Create(invoice).Error)
	return invoice
}

func seedEscrow(t *testing.T, db *gorm.DB, invoice *model.InvoiceModel, status model.EscrowStatus, amountStroops, feeBps int64) *model.EscrowContractModel {
	t.Helper()
	escrow := &model.EscrowContractModel{
		InvoiceId:         invoice.Id,
		ContractId:        fmt.Sprintf("CESCROW%d", invoice.Id),
		Salt:              fakeHash(fmt.Sprintf("salt:%d", invoice.Id)),
		FreelancerAddress: keypair.MustRandom().Address(),
		ArbiterAddress:    keypair.MustRandom().Address(),
		AssetCode:         "USDC",
		AmountStroops:     amountStroops,
		FeeBps:            feeBps,
		Status:            status,
	}
	require.NoError(t, db.Create(escrow).Error)
	if status != model.EscrowStatusNone {
		require.NoError(t, db.Model(&model.InvoiceModel{}).
			Where("id = ?", invoice.Id).Update("escrow_enabled", true).Error)
		invoice.EscrowEnabled = true
	}
	return escrow
}
