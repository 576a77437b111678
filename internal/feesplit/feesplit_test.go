package feesplit_test

import (
	"math/rand"
	"testing"

	"github.com/lancepay/lps/internal/feesplit"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestComputeSplitExamples(t *testing.T) {
	// 1000.0000000 @ 100bps → fee 10, net 990
	split, err := feesplit.ComputeSplit(10_000_000_000, 100)
	require.NoError(t, err)
	require.Equal(t, int64(100_000_000), split.FeeStroops)
	require.Equal(t, int64(9_900_000_000), split.NetStroops)

	// 零费率
	split, err = feesplit.ComputeSplit(12_345, 0)
	require.NoError(t, err)
	require.Equal(t, int64(0), split.FeeStroops)
	require.Equal(t, int64(12_345), split.NetStroops)

	// 全额费率
	split, err = feesplit.ComputeSplit(12_345, 10000)
	require.NoError(t, err)
	require.Equal(t, int64(12_345), split.FeeStroops)
	require.Equal(t, int64(0), split.NetStroops)

	// 不足一个 stroop 的费向下取整
	split, err = feesplit.ComputeSplit(99, 100)
	require.NoError(t, err)
	require.Equal(t, int64(0), split.FeeStroops)
	require.Equal(t, int64(99), split.NetStroops)
}

func TestComputeSplitErrors(t *testing.T) {
	_, err := feesplit.ComputeSplit(-1, 100)
	require.ErrorIs(t, err, feesplit.ErrNegativeGross)

	_, err = feesplit.ComputeSplit(100, -1)
	require.ErrorIs(t, err, feesplit.ErrInvalidBps)

	_, err = feesplit.ComputeSplit(100, 10001)
	require.ErrorIs(t, err, feesplit.ErrInvalidBps)
}

func TestComputeSplitConservesEveryStroop(t *testing.T) {
	const N = 5000
	source := rand.NewSource(42)
	r := rand.New(source)
	for i := 0; i < N; i++ {
		gross := r.Int63()
		bps := r.Int63n(10001)

		split, err := feesplit.ComputeSplit(gross, bps)
		require.NoError(t, err)
		require.Equal(t, gross, split.FeeStroops+split.NetStroops)
		require.GreaterOrEqual(t, split.FeeStroops, int64(0))
		require.GreaterOrEqual(t, split.NetStroops, int64(0))

		// 与任意精度计算的向下取整结果一致
		exact := decimal.NewFromInt(gross).Mul(decimal.NewFromInt(bps)).
			Div(decimal.NewFromInt(10000)).Floor()
		require.Equal(t, exact.String(), decimal.NewFromInt(split.FeeStroops).String())
	}
}

func TestVerifySplit(t *testing.T) {
	d := decimal.RequireFromString

	require.True(t, feesplit.VerifySplit(d("100"), d("1"), d("99")))
	require.True(t, feesplit.VerifySplit(d("100"), d("1"), d("98.9999999")))
	require.False(t, feesplit.VerifySplit(d("100"), d("1"), d("98.999999")))
	require.False(t, feesplit.VerifySplit(d("100"), d("-1"), d("101")))
	require.False(t, feesplit.VerifySplit(d("100"), d("101"), d("-1")))
}

func TestComputeWaterfallExamples(t *testing.T) {
	d := decimal.RequireFromString

	// 500 的 30% → 150，负责人 350
	w, err := feesplit.ComputeWaterfall(d("500"), []feesplit.Share{
		{Id: 1, Email: "dev@example.com", Percentage: d("30")},
	})
	require.NoError(t, err)
	require.Len(t, w.Distributions, 1)
	require.True(t, w.Distributions[0].Amount.Equal(d("150")))
	require.True(t, w.LeadAmount.Equal(d("350")))

	// 四舍五入进位：10.01 的 50% = 5.005 → 5.01
	w, err = feesplit.ComputeWaterfall(d("10.01"), []feesplit.Share{
		{Id: 1, Percentage: d("50")},
	})
	require.NoError(t, err)
	require.True(t, w.Distributions[0].Amount.Equal(d("5.01")))
	require.True(t, w.LeadAmount.Equal(d("5.00")))

	// 舍入残差归负责人：100.01 按 3×33.33% 拆分
	w, err = feesplit.ComputeWaterfall(d("100.01"), []feesplit.Share{
		{Id: 1, Percentage: d("33.33")},
		{Id: 2, Percentage: d("33.33")},
		{Id: 3, Percentage: d("33.33")},
	})
	require.NoError(t, err)
	for _, dist := range w.Distributions {
		require.True(t, dist.Amount.Equal(d("33.33")))
	}
	require.True(t, w.LeadAmount.Equal(d("0.02")))

	// 没有协作者时全额归负责人
	w, err = feesplit.ComputeWaterfall(d("250.55"), nil)
	require.NoError(t, err)
	require.Empty(t, w.Distributions)
	require.True(t, w.LeadAmount.Equal(d("250.55")))
}

func TestComputeWaterfallOverAllocation(t *testing.T) {
	d := decimal.RequireFromString

	_, err := feesplit.ComputeWaterfall(d("1000"), []feesplit.Share{
		{Id: 1, Percentage: d("40")},
		{Id: 2, Percentage: d("40")},
		{Id: 3, Percentage: d("25")},
	})
	require.Error(t, err)

	var overErr *feesplit.OverAllocationError
	require.ErrorAs(t, err, &overErr)
	require.True(t, overErr.Total.Equal(d("105")))

	// 刚好100%是允许的
	w, err := feesplit.ComputeWaterfall(d("100"), []feesplit.Share{
		{Id: 1, Percentage: d("33.33")},
		{Id: 2, Percentage: d("33.33")},
		{Id: 3, Percentage: d("33.34")},
	})
	require.NoError(t, err)
	require.True(t, w.LeadAmount.IsZero())
}

func TestComputeWaterfallInvalidShares(t *testing.T) {
	d := decimal.RequireFromString

	_, err := feesplit.ComputeWaterfall(d("100"), []feesplit.Share{{Percentage: d("0")}})
	require.ErrorIs(t, err, feesplit.ErrInvalidShare)

	_, err = feesplit.ComputeWaterfall(d("100"), []feesplit.Share{{Percentage: d("-5")}})
	require.ErrorIs(t, err, feesplit.ErrInvalidShare)

	_, err = feesplit.ComputeWaterfall(d("100"), []feesplit.Share{{Percentage: d("100.01")}})
	require.ErrorIs(t, err, feesplit.ErrInvalidShare)

	_, err = feesplit.ComputeWaterfall(d("-1"), nil)
	require.ErrorIs(t, err, feesplit.ErrNegativeGross)
}

func TestComputeWaterfallConservation(t *testing.T) {
	const N = 2000
	source := rand.NewSource(7)
	r := rand.New(source)
	for i := 0; i < N; i++ {
		// 2位小数的发票金额，最多5个协作者，总分成不超过100%
		invoice := decimal.New(r.Int63n(100_000_00)+1, -2)
		remaining := decimal.NewFromInt(100)
		var shares []feesplit.Share
		for j := r.Intn(6); j > 0 && remaining.GreaterThan(decimal.New(1, -2)); j-- {
			pct := decimal.New(r.Int63n(remaining.Shift(2).IntPart())+1, -2)
			shares = append(shares, feesplit.Share{Id: int64(j), Percentage: pct})
			remaining = remaining.Sub(pct)
		}

		w, err := feesplit.ComputeWaterfall(invoice, shares)
		require.NoError(t, err)

		sum := w.LeadAmount
		for _, dist := range w.Distributions {
			sum = sum.Add(dist.Amount)
		}
		require.True(t, sum.Equal(invoice),
			"invoice %s shares %v sum %s", invoice, shares, sum)
	}
}

func TestUnitsToStroops(t *testing.T) {
	d := decimal.RequireFromString

	s, err := feesplit.UnitsToStroops(d("150.00"))
	require.NoError(t, err)
	require.Equal(t, int64(1_500_000_000), s)

	s, err = feesplit.UnitsToStroops(d("0.0000001"))
	require.NoError(t, err)
	require.Equal(t, int64(1), s)

	_, err = feesplit.UnitsToStroops(d("0.00000001"))
	require.ErrorIs(t, err, feesplit.ErrPrecision)

	require.True(t, feesplit.StroopsToUnits(1_500_000_000).Equal(d("150")))
	require.True(t, feesplit.StroopsToUnits(1).Equal(d("0.0000001")))
}

func TestSplitUnitsRoundtrip(t *testing.T) {
	const N = 1000
	source := rand.NewSource(99)
	r := rand.New(source)
	for i := 0; i < N; i++ {
		gross := decimal.New(r.Int63n(1_000_000_00)+1, -2)
		stroops, err := feesplit.UnitsToStroops(gross)
		require.NoError(t, err)

		split, err := feesplit.ComputeSplit(stroops, r.Int63n(10001))
		require.NoError(t, err)

		fee := feesplit.StroopsToUnits(split.FeeStroops)
		net := feesplit.StroopsToUnits(split.NetStroops)
		require.True(t, feesplit.VerifySplit(gross, fee, net))
	}
}
