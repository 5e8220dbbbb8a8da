package money

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidLoanTerms возвращается при недопустимых параметрах кредитного калькулятора.
var ErrInvalidLoanTerms = errors.New("invalid loan terms")

// Границы годовой ставки калькулятора, в процентах.
var (
	MinAnnualRate = decimal.NewFromInt(1)
	MaxAnnualRate = decimal.NewFromInt(30)
)

// MaxTenureMonths — наибольший срок кредита в месяцах.
const MaxTenureMonths = 480

// maxRateExponent ограничивает экспоненту ставки, чтобы сравнение не раздувало коэффициент.
const maxRateExponent = 16

// powPrecision ограничивает разрядность промежуточных степеней.
const powPrecision = 24

// Schedule — результат расчёта аннуитетного платежа.
type Schedule struct {
	EMI           Money `json:"emi"`
	TotalPayment  Money `json:"total_payment"`
	TotalInterest Money `json:"total_interest"`
	Months        int   `json:"months"`
}

// TenureMonths переводит срок в месяцы. unit: "months" (по умолчанию) или "years".
func TenureMonths(tenure int, unit string) (int, error) {
	if tenure <= 0 {
		return 0, ErrInvalidLoanTerms
	}
	switch unit {
	case "", "months":
	case "years":
		if tenure > MaxTenureMonths/12 {
			return 0, ErrInvalidLoanTerms
		}
		tenure *= 12
	default:
		return 0, ErrInvalidLoanTerms
	}
	if tenure > MaxTenureMonths {
		return 0, ErrInvalidLoanTerms
	}
	return tenure, nil
}

// EMI рассчитывает ежемесячный платёж по формуле аннуитета
// emi = P·r·(1+r)^n / ((1+r)^n − 1), где r — месячная ставка.
func EMI(principal Money, annualRate decimal.Decimal, months int) (Schedule, error) {
	if !principal.IsPositive() || months <= 0 || months > MaxTenureMonths {
		return Schedule{}, ErrInvalidLoanTerms
	}
	if e := annualRate.Exponent(); e < -maxRateExponent || e > maxRateExponent {
		return Schedule{}, ErrInvalidLoanTerms
	}
	if annualRate.LessThan(MinAnnualRate) || annualRate.GreaterThan(MaxAnnualRate) {
		return Schedule{}, ErrInvalidLoanTerms
	}

	p := principal.Decimal()
	r := annualRate.Div(decimal.NewFromInt(1200))
	f := powInt(decimal.NewFromInt(1).Add(r), months)

	emi := p.Mul(r).Mul(f).Div(f.Sub(decimal.NewFromInt(1)))
	total := emi.Mul(decimal.NewFromInt(int64(months)))

	return Schedule{
		EMI:           Round(emi),
		TotalPayment:  Round(total),
		TotalInterest: Round(total.Sub(p)),
		Months:        months,
	}, nil
}

// powInt возводит base в степень n быстрым возведением, округляя промежуточные произведения.
func powInt(base decimal.Decimal, n int) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(base).Round(powPrecision)
		}
		base = base.Mul(base).Round(powPrecision)
		n >>= 1
	}
	return result
}
