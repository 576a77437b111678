package logic_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lancepay/lps/internal/logic"
	"github.com/lancepay/lps/internal/model"
)

func newInvoiceLogic(db *gorm.DB, fl *fakeLedger) *logic.InvoiceLogic {
	return logic.NewInvoiceLogic(db, newWaterfallLogic(db, fl))
}

func TestCreateInvoiceValidations(t *testing.T) {
	db := newTestDB(t)
	l := newInvoiceLogic(db, newFakeLedger())
	ctx := context.Background()
	d := decimal.RequireFromString

	cases := []struct {
		owner, client, title string
		amount               decimal.Decimal
		wantErr              string
	}{
		{"bad-email", "client@example.com", "site", d("100"), "开票人邮箱无效"},
		{"dev@example.com", "bad-email", "site", d("100"), "客户邮箱无效"},
		{"dev@example.com", "DEV@example.com", "site", d("100"), "客户邮箱不能与开票人相同"},
		{"dev@example.com", "client@example.com", "", d("100"), "发票标题不能为空"},
		{"dev@example.com", "client@example.com", "site", d("0"), "发票金额必须大于零"},
		{"dev@example.com", "client@example.com", "site", d("1.00000001"), "发票金额精度无效"},
	}
	for _, c := range cases {
		_, err := l.CreateInvoice(ctx, c.owner, c.client, c.title, c.amount)
		require.EqualError(t, err, c.wantErr)
	}
}

func TestCreateInvoiceCreatesOwnerProfile(t *testing.T) {
	db := newTestDB(t)
	l := newInvoiceLogic(db, newFakeLedger())
	ctx := context.Background()

	invoice, err := l.CreateInvoice(ctx, "dev@example.com", "client@example.com", "logo design",
		decimal.RequireFromString("250.00"))
	require.NoError(t, err)
	require.Equal(t, model.InvoiceStatusUnpaid, invoice.Status)
	require.True(t, invoice.Amount.Equal(decimal.RequireFromString("250")))

	var owner model.UserModel
	require.NoError(t, db.Where("email = ?", "dev@example.com").First(&owner).Error)
	require.Equal(t, model.UserRoleFreelancer, owner.Role)
	require.Equal(t, owner.Id, invoice.OwnerId)

	// 第二张发票复用已有档案
	_, err = l.CreateInvoice(ctx, "dev@example.com", "client@example.com", "banner",
		decimal.RequireFromString("80.00"))
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&model.UserModel{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestMarkPaidAuthorizationAndConflict(t *testing.T) {
	db := newTestDB(t)
	l := newInvoiceLogic(db, newFakeLedger())
	ctx := context.Background()

	owner := seedUser(t, db, "dev@example.com", "", model.UserRoleFreelancer)
	invoice := seedInvoice(t, db, owner, "client@example.com", "100.00")

	_, _, err := l.MarkPaid(ctx, invoice.Id, "", "")
	require.EqualError(t, err, "缺少验证邮箱")
	_, _, err = l.MarkPaid(ctx, invoice.Id, "client@example.com", "")
	require.ErrorIs(t, err, logic.ErrNotAuthorized)
	_, _, err = l.MarkPaid(ctx, 404, "dev@example.com", "")
	require.ErrorIs(t, err, logic.ErrInvoiceNotFound)

	paid, _, err := l.MarkPaid(ctx, invoice.Id, "Dev@Example.com", fakeHash("bank-wire"))
	require.NoError(t, err)
	require.Equal(t, model.InvoiceStatusPaid, paid.Status)
	require.Equal(t, fakeHash("bank-wire"), paid.PaidTxHash)
	require.NotNil(t, paid.PaidAt)

	// 重复标记只有第一次生效
	_, _, err = l.MarkPaid(ctx, invoice.Id, "dev@example.com", "")
	require.ErrorIs(t, err, logic.ErrStateConflict)
}

func TestMarkPaidRejectsEscrowedInvoice(t *testing.T) {
	db := newTestDB(t)
	l := newInvoiceLogic(db, newFakeLedger())
	ctx := context.Background()

	owner := seedUser(t, db, "dev@example.com", "", model.UserRoleFreelancer)
	invoice := seedInvoice(t, db, owner, "client@example.com", "100.00")
	seedEscrow(t, db, invoice, model.EscrowStatusHeld, 1_000_000_000, 100)

	_, _, err := l.MarkPaid(ctx, invoice.Id, "dev@example.com", "")
	require.EqualError(t, err, "托管发票需通过放款结清")
}

func TestMarkPaidTriggersWaterfall(t *testing.T) {
	db := newTestDB(t)
	fl := newFakeLedger()
	l := newInvoiceLogic(db, fl)
	ctx := context.Background()

	owner := seedUser(t, db, "dev@example.com", keypair.MustRandom().Address(), model.UserRoleFreelancer)
	invoice := seedInvoice(t, db, owner, "client@example.com", "500.00")
	share := seedShare(t, db, invoice.Id, "helper@example.com", keypair.MustRandom().Address(), "30", model.PayoutStatusPending)

	_, results, err := l.MarkPaid(ctx, invoice.Id, "dev@example.com", "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, model.PayoutStatusCompleted, findResult(t, results, share.Id).Status)

	leadResult := findResult(t, results, 0)
	require.Equal(t, model.PayoutStatusCompleted, leadResult.Status)
	require.True(t, leadResult.Amount.Equal(decimal.RequireFromString("350")))

	var reloaded model.CollaboratorShareModel
	require.NoError(t, db.Where("id = ?", share.Id).First(&reloaded).Error)
	require.Equal(t, model.PayoutStatusCompleted, reloaded.PayoutStatus)
}

func TestListInvoicesPagination(t *testing.T) {
	db := newTestDB(t)
	l := newInvoiceLogic(db, newFakeLedger())
	ctx := context.Background()

	owner := seedUser(t, db, "dev@example.com", "", model.UserRoleFreelancer)
	other := seedUser(t, db, "other@example.com", "", model.UserRoleFreelancer)
	for i := 0; i < 3; i++ {
		seedInvoice(t, db, owner, "client@example.com", "100.00")
	}
	seedInvoice(t, db, other, "client@example.com", "100.00")

	invoices, total, err := l.ListInvoices(ctx, "dev@example.com", 1, 2)
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, invoices, 2)

	invoices, total, err = l.ListInvoices(ctx, "dev@example.com", 2, 2)
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, invoices, 1)

	// 不带过滤返回全部
	_, total, err = l.ListInvoices(ctx, "", 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(4), total)
}

func TestGetInvoiceNotFound(t *testing.T) {
	db := newTestDB(t)
	l := newInvoiceLogic(db, newFakeLedger())

	_, err := l.GetInvoice(context.Background(), 404)
	require.ErrorIs(t, err, logic.ErrInvoiceNotFound)
}
