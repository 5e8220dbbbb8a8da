// Package validation содержит проверку и генерацию номеров счетов.
package validation

import (
	"math/rand/v2"
	"unicode"
)

// AccountNumberLength — длина номера счёта вместе с контрольной цифрой.
const AccountNumberLength = 10

// IsValidAccountNumber проверяет длину номера счёта и контрольную цифру по алгоритму Луна.
func IsValidAccountNumber(number string) bool {
	if len(number) != AccountNumberLength {
		return false
	}
	return luhnSum(number, false)%10 == 0
}

// NewAccountNumber генерирует случайный номер счёта с контрольной цифрой.
// Первая цифра не бывает нулём.
func NewAccountNumber(r *rand.Rand) string {
	digits := make([]byte, AccountNumberLength)
	digits[0] = byte('1' + r.IntN(9))
	for i := 1; i < AccountNumberLength-1; i++ {
		digits[i] = byte('0' + r.IntN(10))
	}

	sum := luhnSum(string(digits[:AccountNumberLength-1]), true)
	digits[AccountNumberLength-1] = byte('0' + (10-sum%10)%10)
	return string(digits)
}

// luhnSum считает сумму Луна справа налево. Если double выставлен,
// удваивается крайняя правая цифра: так считают тело номера без контрольной цифры.
func luhnSum(number string, double bool) int {
	sum := 0
	for i := len(number) - 1; i >= 0; i-- {
		ch := rune(number[i])
		if !unicode.IsDigit(ch) {
			return -1
		}
		digit := int(ch - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}
	return sum
}
