package logic_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lancepay/lps/internal/config"
	"github.com/lancepay/lps/internal/logic"
	"github.com/lancepay/lps/internal/model"
	"github.com/lancepay/lps/internal/stellar"
)

func newRescueLogic(db *gorm.DB, fl *fakeLedger) *logic.RescueLogic {
	return logic.NewRescueLogic(db, fl, config.RescueConfig{
		StuckAfter:       time.Minute,
		MaxFeeMultiplier: 10,
		BatchSize:        20,
	})
}

// seedTrackedTx 登记一笔已提交未确认的交易并回拨更新时间
func seedTrackedTx(t *testing.T, db *gorm.DB, envelope string, kind model.LedgerTxKind, age time.Duration) *model.LedgerTxModel {
	t.Helper()
	row := &model.LedgerTxModel{
		Hash:        fakeHash(envelope),
		EnvelopeXdr: envelope,
		Kind:        kind,
		Status:      model.LedgerTxStatusSubmitted,
	}
	require.NoError(t, db.Create(row).Error)
	if age > 0 {
		require.NoError(t, db.Model(&model.LedgerTxModel{}).Where("id = ?", row.Id).
			UpdateColumn("updated_at", time.Now().Add(-age)).Error)
	}
	return row
}

func TestRescueBumpsStuckTransaction(t *testing.T) {
	db := newTestDB(t)
	fl := newFakeLedger()
	l := newRescueLogic(db, fl)

	envelope := fmt.Sprintf("pay:%s:%d", keypair.MustRandom().Address(), 1_000_000)
	row := seedTrackedTx(t, db, envelope, model.LedgerTxKindPayment, 0)

	outcome, err := l.Rescue(context.Background(), envelope, 0)
	require.NoError(t, err)
	require.Equal(t, row.Hash, outcome.OriginalHash)
	// 费用下限 = 基础费 100 × 倍数 10
	require.Equal(t, int64(1000), outcome.MaxFeePerOp)
	require.Equal(t, fakeHash(fmt.Sprintf("bump:1000:%s", envelope)), outcome.NewHash)
	require.Len(t, fl.submittedWithPrefix("bump:"), 1)

	// 原交易标记为已置换并关联新哈希
	var original model.LedgerTxModel
	require.NoError(t, db.Where("hash = ?", row.Hash).First(&original).Error)
	require.Equal(t, model.LedgerTxStatusReplaced, original.Status)
	require.Equal(t, outcome.NewHash, original.ReplacedByHash)

	var bump model.LedgerTxModel
	require.NoError(t, db.Where("hash = ?", outcome.NewHash).First(&bump).Error)
	require.Equal(t, model.LedgerTxKindFeeBump, bump.Kind)
	require.Equal(t, model.LedgerTxStatusConfirmed, bump.Status)
}

func TestRescueHonorsCallerFeeCap(t *testing.T) {
	db := newTestDB(t)
	fl := newFakeLedger()
	l := newRescueLogic(db, fl)

	envelope := fmt.Sprintf("pay:%s:%d", keypair.MustRandom().Address(), 500)
	outcome, err := l.Rescue(context.Background(), envelope, 5000)
	require.NoError(t, err)
	require.Equal(t, int64(5000), outcome.MaxFeePerOp)

	// 低于下限的出价按下限执行
	envelope2 := fmt.Sprintf("pay:%s:%d", keypair.MustRandom().Address(), 600)
	outcome, err = l.Rescue(context.Background(), envelope2, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1000), outcome.MaxFeePerOp)
}

func TestRescueValidatesEnvelope(t *testing.T) {
	db := newTestDB(t)
	fl := newFakeLedger()
	l := newRescueLogic(db, fl)

	_, err := l.Rescue(context.Background(), "", 0)
	require.EqualError(t, err, "交易内容不能为空")

	// 已经是费用置换交易的信封不能再包一层
	_, err = l.Rescue(context.Background(), "bump:1000:pay:x:1", 0)
	require.Error(t, err)
	require.Equal(t, stellar.ClassValidation, stellar.ClassOf(err))
	require.Empty(t, fl.submitted())
}

func TestRescueSkipsConfirmedTransaction(t *testing.T) {
	db := newTestDB(t)
	fl := newFakeLedger()
	l := newRescueLogic(db, fl)

	envelope := fmt.Sprintf("pay:%s:%d", keypair.MustRandom().Address(), 777)
	row := seedTrackedTx(t, db, envelope, model.LedgerTxKindPayment, 0)
	fl.setTx(row.Hash, true)

	_, err := l.Rescue(context.Background(), envelope, 0)
	require.EqualError(t, err, "交易已上链，无需救援")
	require.Empty(t, fl.submittedWithPrefix("bump:"))

	// 顺手把跟踪记录收敛成已确认
	var reloaded model.LedgerTxModel
	require.NoError(t, db.Where("hash = ?", row.Hash).First(&reloaded).Error)
	require.Equal(t, model.LedgerTxStatusConfirmed, reloaded.Status)
}

func TestRescueTracksExternalTransaction(t *testing.T) {
	db := newTestDB(t)
	fl := newFakeLedger()
	l := newRescueLogic(db, fl)

	// 不是本服务提交的交易：救援后补登记
	envelope := fmt.Sprintf("pay:%s:%d", keypair.MustRandom().Address(), 42)
	outcome, err := l.Rescue(context.Background(), envelope, 0)
	require.NoError(t, err)

	var tracked model.LedgerTxModel
	require.NoError(t, db.Where("hash = ?", outcome.OriginalHash).First(&tracked).Error)
	require.Equal(t, model.LedgerTxKindExternal, tracked.Kind)
	require.Equal(t, model.LedgerTxStatusReplaced, tracked.Status)
	require.Equal(t, outcome.NewHash, tracked.ReplacedByHash)
}

func TestSweepStuckSettlesAndRescues(t *testing.T) {
	db := newTestDB(t)
	fl := newFakeLedger()
	l := newRescueLogic(db, fl)

	// 已上链：扫描时确认
	confirmed := seedTrackedTx(t, db,
		fmt.Sprintf("pay:%s:%d", keypair.MustRandom().Address(), 1), model.LedgerTxKindPayment, 2*time.Minute)
	fl.setTx(confirmed.Hash, true)

	// 迟迟不上链：扫描时救援
	stuck := seedTrackedTx(t, db,
		fmt.Sprintf("pay:%s:%d", keypair.MustRandom().Address(), 2), model.LedgerTxKindPayment, 2*time.Minute)

	// 置换交易本身不参与扫描
	bumpRow := seedTrackedTx(t, db, "bump:1000:pay:old:3", model.LedgerTxKindFeeBump, 2*time.Minute)

	// 还不算卡住
	fresh := seedTrackedTx(t, db,
		fmt.Sprintf("pay:%s:%d", keypair.MustRandom().Address(), 4), model.LedgerTxKindPayment, 0)

	rescued, err := l.SweepStuck(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, rescued)

	expect := map[int64]model.LedgerTxStatus{
		confirmed.Id: model.LedgerTxStatusConfirmed,
		stuck.Id:     model.LedgerTxStatusReplaced,
		bumpRow.Id:   model.LedgerTxStatusSubmitted,
		fresh.Id:     model.LedgerTxStatusSubmitted,
	}
	for id, want := range expect {
		var row model.LedgerTxModel
		require.NoError(t, db.Where("id = ?", id).First(&row).Error)
		require.Equal(t, want, row.Status)
	}
	require.Len(t, fl.submittedWithPrefix("bump:"), 1)
}

func TestSweepStuckCountsFailedAttempts(t *testing.T) {
	db := newTestDB(t)
	fl := newFakeLedger()
	l := newRescueLogic(db, fl)

	stuck := seedTrackedTx(t, db,
		fmt.Sprintf("pay:%s:%d", keypair.MustRandom().Address(), 9), model.LedgerTxKindPayment, 2*time.Minute)
	fl.setOnSubmit(func(string) error {
		return stellar.NewError(stellar.ClassTransient, "timeout", nil)
	})

	rescued, err := l.SweepStuck(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, rescued)

	var reloaded model.LedgerTxModel
	require.NoError(t, db.Where("id = ?", stuck.Id).First(&reloaded).Error)
	require.Equal(t, model.LedgerTxStatusSubmitted, reloaded.Status)
	require.Equal(t, 2, reloaded.SubmitAttempts)
}
