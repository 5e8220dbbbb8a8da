// Package money содержит денежный тип с фиксированной точностью в два знака после запятой.
package money

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale — число дробных разрядов единицы учёта.
const Scale = 2

var (
	// ErrMalformed возвращается, если строку нельзя разобрать как десятичное число.
	ErrMalformed = errors.New("malformed amount")
	// ErrTooPrecise возвращается, если сумма содержит больше двух знаков после запятой.
	ErrTooPrecise = errors.New("amount has more than two fractional digits")
	// ErrOutOfRange возвращается, если сумма не помещается в int64 копеек.
	ErrOutOfRange = errors.New("amount out of range")
)

var (
	maxCents = decimal.NewFromInt(1<<63 - 1)
	minCents = decimal.NewFromInt(-1 << 63)
)

// Money — точная денежная сумма, хранящаяся в копейках.
type Money struct {
	cents int64
}

// Zero — нулевая сумма.
var Zero = Money{}

// FromCents создаёт сумму из количества копеек.
func FromCents(cents int64) Money {
	return Money{cents: cents}
}

// maxInputLen ограничивает длину текстовой записи суммы.
const maxInputLen = 64

var ten = big.NewInt(10)

// FromDecimal преобразует decimal в Money, отклоняя лишнюю точность.
// Работа зависит от числа цифр коэффициента, а не от величины экспоненты.
func FromDecimal(d decimal.Decimal) (Money, error) {
	coef := d.Coefficient()
	if coef.Sign() == 0 {
		return Zero, nil
	}

	exp := int64(d.Exponent())
	for exp < -Scale {
		q, r := new(big.Int).QuoRem(coef, ten, new(big.Int))
		if r.Sign() != 0 {
			return Zero, ErrTooPrecise
		}
		coef = q
		exp++
	}

	// Ненулевой коэффициент, умноженный на 10^19, уже не помещается в int64.
	if exp+Scale > 18 {
		return Zero, ErrOutOfRange
	}
	cents := coef.Mul(coef, new(big.Int).Exp(ten, big.NewInt(exp+Scale), nil))
	if !cents.IsInt64() {
		return Zero, ErrOutOfRange
	}
	return Money{cents: cents.Int64()}, nil
}

// Parse разбирает десятичную запись суммы, например "100.50".
func Parse(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrMalformed
	}
	if len(s) > maxInputLen {
		return Zero, fmt.Errorf("%w: %q", ErrMalformed, clip(s))
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	m, err := FromDecimal(d)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", err, s)
	}
	return m, nil
}

func clip(s string) string {
	if len(s) > maxInputLen {
		return s[:maxInputLen] + "..."
	}
	return s
}

// MustParse как Parse, но паникует при ошибке. Используется в тестах и константах.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Round округляет производную величину до копеек по правилу half-up.
func Round(d decimal.Decimal) Money {
	m, err := fromScaled(d.Round(Scale).Shift(Scale))
	if err != nil {
		if d.IsNegative() {
			return Money{cents: -1 << 63}
		}
		return Money{cents: 1<<63 - 1}
	}
	return m
}

func fromScaled(c decimal.Decimal) (Money, error) {
	if c.GreaterThan(maxCents) || c.LessThan(minCents) {
		return Zero, ErrOutOfRange
	}
	return Money{cents: c.IntPart()}, nil
}

// Cents возвращает сумму в копейках.
func (m Money) Cents() int64 {
	return m.cents
}

// Decimal возвращает сумму как decimal.Decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.cents, -Scale)
}

// Add возвращает m + o.
func (m Money) Add(o Money) Money {
	return Money{cents: m.cents + o.cents}
}

// Sub возвращает m - o.
func (m Money) Sub(o Money) Money {
	return Money{cents: m.cents - o.cents}
}

// Cmp сравнивает суммы: -1, 0 или 1.
func (m Money) Cmp(o Money) int {
	switch {
	case m.cents < o.cents:
		return -1
	case m.cents > o.cents:
		return 1
	default:
		return 0
	}
}

// LessThan сообщает, что m < o.
func (m Money) LessThan(o Money) bool { return m.cents < o.cents }

// GreaterThan сообщает, что m > o.
func (m Money) GreaterThan(o Money) bool { return m.cents > o.cents }

// IsPositive сообщает, что сумма строго больше нуля.
func (m Money) IsPositive() bool { return m.cents > 0 }

// IsNegative сообщает, что сумма меньше нуля.
func (m Money) IsNegative() bool { return m.cents < 0 }

// IsZero сообщает, что сумма равна нулю.
func (m Money) IsZero() bool { return m.cents == 0 }

// String возвращает запись с двумя знаками после запятой.
func (m Money) String() string {
	return m.Decimal().StringFixed(Scale)
}

// Sum складывает суммы.
func Sum(values ...Money) Money {
	var total Money
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// MarshalJSON кодирует сумму числом с двумя знаками после запятой.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON принимает как число, так и строку.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) > maxInputLen+2 {
		return fmt.Errorf("%w: %s", ErrMalformed, clip(s))
	}
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrMalformed, clip(s))
		}
		s = unquoted
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
