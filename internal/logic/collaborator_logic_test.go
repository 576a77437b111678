package logic_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/require"

	"github.com/lancepay/lps/internal/feesplit"
	"github.com/lancepay/lps/internal/logic"
	"github.com/lancepay/lps/internal/model"
)

func TestAddCollaboratorValidations(t *testing.T) {
	db := newTestDB(t)
	l := logic.NewCollaboratorLogic(db)
	ctx := context.Background()
	d := decimal.RequireFromString

	owner := seedUser(t, db, "lead@example.com", "", model.UserRoleFreelancer)
	invoice := seedInvoice(t, db, owner, "client@example.com", "1000.00")

	_, err := l.AddCollaborator(ctx, 404, "dev@example.com", d("10"))
	require.ErrorIs(t, err, logic.ErrInvoiceNotFound)

	_, err = l.AddCollaborator(ctx, invoice.Id, "not-an-email", d("10"))
	require.EqualError(t, err, "协作者邮箱无效")

	_, err = l.AddCollaborator(ctx, invoice.Id, "Lead@Example.com", d("10"))
	require.EqualError(t, err, "发票所有者不能添加为协作者")

	_, err = l.AddCollaborator(ctx, invoice.Id, "dev@example.com", d("0"))
	require.EqualError(t, err, "分成比例必须在 (0, 100] 区间内")
	_, err = l.AddCollaborator(ctx, invoice.Id, "dev@example.com", d("100.01"))
	require.EqualError(t, err, "分成比例必须在 (0, 100] 区间内")

	_, err = l.AddCollaborator(ctx, invoice.Id, "dev@example.com", d("10"))
	require.NoError(t, err)
	_, err = l.AddCollaborator(ctx, invoice.Id, "DEV@example.com", d("5"))
	require.EqualError(t, err, "协作者已存在")

	markInvoicePaid(t, db, invoice.Id)
	_, err = l.AddCollaborator(ctx, invoice.Id, "late@example.com", d("5"))
	require.EqualError(t, err, "发票已结清，分成不可调整")
}

func TestAddCollaboratorOverAllocation(t *testing.T) {
	db := newTestDB(t)
	l := logic.NewCollaboratorLogic(db)
	ctx := context.Background()
	d := decimal.RequireFromString

	owner := seedUser(t, db, "lead@example.com", "", model.UserRoleFreelancer)
	invoice := seedInvoice(t, db, owner, "client@example.com", "1000.00")

	_, err := l.AddCollaborator(ctx, invoice.Id, "a@example.com", d("40"))
	require.NoError(t, err)
	_, err = l.AddCollaborator(ctx, invoice.Id, "b@example.com", d("40"))
	require.NoError(t, err)

	// 40 + 40 + 25 越界，错误里带上 105 方便前端提示
	_, err = l.AddCollaborator(ctx, invoice.Id, "c@example.com", d("25"))
	var overErr *feesplit.OverAllocationError
	require.ErrorAs(t, err, &overErr)
	require.True(t, overErr.Total.Equal(d("105")))

	// 刚好凑满 100 是允许的
	_, err = l.AddCollaborator(ctx, invoice.Id, "c@example.com", d("20"))
	require.NoError(t, err)
}

func TestAddCollaboratorPrecomputesAmount(t *testing.T) {
	db := newTestDB(t)
	l := logic.NewCollaboratorLogic(db)
	ctx := context.Background()
	d := decimal.RequireFromString

	owner := seedUser(t, db, "lead@example.com", "", model.UserRoleFreelancer)
	devWallet := keypair.MustRandom().Address()
	seedUser(t, db, "dev@example.com", devWallet, model.UserRoleFreelancer)
	invoice := seedInvoice(t, db, owner, "client@example.com", "10.01")

	// 10.01 的 50% = 5.005，四舍五入到 5.01
	share, err := l.AddCollaborator(ctx, invoice.Id, "dev@example.com", d("50"))
	require.NoError(t, err)
	require.True(t, share.AmountDue.Equal(d("5.01")))
	require.Equal(t, devWallet, share.WalletAddress)
	require.Equal(t, model.PayoutStatusPending, share.PayoutStatus)
}

func TestUpdateShare(t *testing.T) {
	db := newTestDB(t)
	l := logic.NewCollaboratorLogic(db)
	ctx := context.Background()
	d := decimal.RequireFromString

	owner := seedUser(t, db, "lead@example.com", "", model.UserRoleFreelancer)
	invoice := seedInvoice(t, db, owner, "client@example.com", "1000.00")
	a, err := l.AddCollaborator(ctx, invoice.Id, "a@example.com", d("40"))
	require.NoError(t, err)
	_, err = l.AddCollaborator(ctx, invoice.Id, "b@example.com", d("30"))
	require.NoError(t, err)

	updated, err := l.UpdateShare(ctx, invoice.Id, a.Id, d("50"))
	require.NoError(t, err)
	require.True(t, updated.SharePercentage.Equal(d("50")))
	require.True(t, updated.AmountDue.Equal(d("500")))

	// 和其他分成合计越界
	_, err = l.UpdateShare(ctx, invoice.Id, a.Id, d("75"))
	var overErr *feesplit.OverAllocationError
	require.ErrorAs(t, err, &overErr)
	require.True(t, overErr.Total.Equal(d("105")))

	_, err = l.UpdateShare(ctx, invoice.Id, 404, d("10"))
	require.ErrorIs(t, err, logic.ErrShareNotFound)

	// 已完成的分成不可再调整
	require.NoError(t, db.Model(&model.CollaboratorShareModel{}).Where("id = ?", a.Id).
		Update("payout_status", model.PayoutStatusCompleted).Error)
	_, err = l.UpdateShare(ctx, invoice.Id, a.Id, d("10"))
	require.ErrorIs(t, err, logic.ErrStateConflict)
}

func TestRemoveCollaborator(t *testing.T) {
	db := newTestDB(t)
	l := logic.NewCollaboratorLogic(db)
	ctx := context.Background()
	d := decimal.RequireFromString

	owner := seedUser(t, db, "lead@example.com", "", model.UserRoleFreelancer)
	invoice := seedInvoice(t, db, owner, "client@example.com", "1000.00")
	a, err := l.AddCollaborator(ctx, invoice.Id, "a@example.com", d("40"))
	require.NoError(t, err)

	require.NoError(t, l.RemoveCollaborator(ctx, invoice.Id, a.Id))
	require.ErrorIs(t, l.RemoveCollaborator(ctx, invoice.Id, a.Id), logic.ErrShareNotFound)

	b, err := l.AddCollaborator(ctx, invoice.Id, "b@example.com", d("30"))
	require.NoError(t, err)
	require.NoError(t, db.Model(&model.CollaboratorShareModel{}).Where("id = ?", b.Id).
		Update("payout_status", model.PayoutStatusProcessing).Error)
	require.ErrorIs(t, l.RemoveCollaborator(ctx, invoice.Id, b.Id), logic.ErrStateConflict)
}

func TestListCollaboratorsSummary(t *testing.T) {
	db := newTestDB(t)
	l := logic.NewCollaboratorLogic(db)
	ctx := context.Background()
	d := decimal.RequireFromString

	owner := seedUser(t, db, "lead@example.com", "", model.UserRoleFreelancer)
	invoice := seedInvoice(t, db, owner, "client@example.com", "1000.00")
	_, err := l.AddCollaborator(ctx, invoice.Id, "a@example.com", d("30"))
	require.NoError(t, err)
	_, err = l.AddCollaborator(ctx, invoice.Id, "b@example.com", d("20"))
	require.NoError(t, err)

	summary, err := l.ListCollaborators(ctx, invoice.Id)
	require.NoError(t, err)
	require.Len(t, summary.Shares, 2)
	require.True(t, summary.TotalPercent.Equal(d("50")))
	require.True(t, summary.LeadPercent.Equal(d("50")))
}

func TestCollaboratorLockedDuringDispute(t *testing.T) {
	db := newTestDB(t)
	l := logic.NewCollaboratorLogic(db)
	ctx := context.Background()

	owner := seedUser(t, db, "lead@example.com", "", model.UserRoleFreelancer)
	invoice := seedInvoice(t, db, owner, "client@example.com", "1000.00")
	seedEscrow(t, db, invoice, model.EscrowStatusDisputed, 10_000_000_000, 100)

	_, err := l.AddCollaborator(ctx, invoice.Id, "dev@example.com", decimal.RequireFromString("10"))
	require.ErrorIs(t, err, logic.ErrStateConflict)
}
