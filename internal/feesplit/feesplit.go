package feesplit

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Split 平台费拆分结果，单位 stroop（1e-7）
type Split struct {
	GrossStroops int64 `json:"gross_stroops"`
	FeeStroops   int64 `json:"fee_stroops"`
	NetStroops   int64 `json:"net_stroops"`
}

var (
	ErrNegativeGross = errors.New("总额不能为负数")
	ErrInvalidBps    = errors.New("费率基点必须在0到10000之间")
	ErrInvalidShare  = errors.New("分成百分比必须大于0且不超过100")
	ErrPrecision     = errors.New("金额超出7位小数精度")
)

// OverAllocationError 分成超额错误，携带越界后的总百分比
type OverAllocationError struct {
	Total decimal.Decimal
}

func (e *OverAllocationError) Error() string {
	return fmt.Sprintf("协作者分成总和不能超过100%%，当前为%s%%", e.Total.String())
}

// ComputeSplit 按基点费率拆分平台费
//
// fee 向下取整到 stroop，net = gross - fee，因此对任意合法输入
// fee + net 恰好等于 gross，不丢也不多一个 stroop。
func ComputeSplit(grossStroops, feeBps int64) (Split, error) {
	if grossStroops < 0 {
		return Split{}, ErrNegativeGross
	}
	if feeBps < 0 || feeBps > 10000 {
		return Split{}, ErrInvalidBps
	}

	// 拆成商和余数计算，避免 gross*bps 越过 int64
	q := grossStroops / 10000
	r := grossStroops % 10000
	fee := q*feeBps + r*feeBps/10000

	return Split{
		GrossStroops: grossStroops,
		FeeStroops:   fee,
		NetStroops:   grossStroops - fee,
	}, nil
}

// splitEpsilon 校验容差，1e-7
var splitEpsilon = decimal.New(1, -7)

// VerifySplit 校验一组金额是否构成合法拆分
func VerifySplit(gross, fee, net decimal.Decimal) bool {
	if fee.IsNegative() || net.IsNegative() {
		return false
	}
	return gross.Sub(fee.Add(net)).Abs().LessThanOrEqual(splitEpsilon)
}

// Share 分账输入：一个协作者的分成百分比
type Share struct {
	Id         int64
	Email      string
	Percentage decimal.Decimal
}

// Distribution 分账输出：一个协作者应得的金额
type Distribution struct {
	ShareId    int64           `json:"share_id"`
	Email      string          `json:"email"`
	Percentage decimal.Decimal `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
}

// Waterfall 分账计划
//
// LeadAmount = InvoiceAmount - Σ Distributions，舍入残差全部归负责人，
// 因此负责人所得可能略高于其名义比例，但各金额之和恰好等于发票金额。
type Waterfall struct {
	InvoiceAmount decimal.Decimal `json:"invoice_amount"`
	Distributions []Distribution  `json:"distributions"`
	LeadAmount    decimal.Decimal `json:"lead_amount"`
	TotalPercent  decimal.Decimal `json:"total_percent"`
}

var hundred = decimal.NewFromInt(100)

// ComputeWaterfall 按分成百分比计算分账计划
//
// 每个协作者金额 = 发票金额 × 百分比 / 100，四舍五入到2位小数；
// 前置条件：每个百分比在 (0,100] 内，且总和不超过100。
func ComputeWaterfall(invoiceAmount decimal.Decimal, shares []Share) (Waterfall, error) {
	if invoiceAmount.IsNegative() {
		return Waterfall{}, ErrNegativeGross
	}

	total := decimal.Zero
	for _, s := range shares {
		if !s.Percentage.IsPositive() || s.Percentage.GreaterThan(hundred) {
			return Waterfall{}, ErrInvalidShare
		}
		total = total.Add(s.Percentage)
	}
	if total.GreaterThan(hundred) {
		return Waterfall{}, &OverAllocationError{Total: total}
	}

	result := Waterfall{
		InvoiceAmount: invoiceAmount,
		Distributions: make([]Distribution, 0, len(shares)),
		TotalPercent:  total,
	}

	shared := decimal.Zero
	for _, s := range shares {
		amt := invoiceAmount.Mul(s.Percentage).Div(hundred).Round(2)
		result.Distributions = append(result.Distributions, Distribution{
			ShareId:    s.Id,
			Email:      s.Email,
			Percentage: s.Percentage,
			Amount:     amt,
		})
		shared = shared.Add(amt)
	}
	result.LeadAmount = invoiceAmount.Sub(shared)

	return result, nil
}

// UnitsToStroops 2位小数金额转 stroop
func UnitsToStroops(d decimal.Decimal) (int64, error) {
	shifted := d.Shift(7)
	if !shifted.IsInteger() {
		return 0, ErrPrecision
	}
	bi := shifted.BigInt()
	if !bi.IsInt64() {
		return 0, ErrPrecision
	}
	return bi.Int64(), nil
}

// StroopsToUnits stroop 转金额
func StroopsToUnits(stroops int64) decimal.Decimal {
	return decimal.New(stroops, -7)
}
