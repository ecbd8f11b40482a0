package payment

import (
	"math/rand/v2"
	"strconv"
	"strings"
)

// GenerateTaxID produces a syntactically valid 11-digit CPF-style tax id.
// AbacatePay requires a taxId on the customer block even for anonymous web
// checkouts, so one is generated per payment attempt when the dialogue
// backend supplies none. The id carries no identity and is never stored.
func GenerateTaxID() string {
	digits := make([]int, 9, 11)
	for i := range digits {
		digits[i] = rand.IntN(10)
	}
	digits = append(digits, checkDigit(digits, 10))
	digits = append(digits, checkDigit(digits, 11))

	var sb strings.Builder
	sb.Grow(len(digits))
	for _, d := range digits {
		sb.WriteString(strconv.Itoa(d))
	}
	return sb.String()
}

// checkDigit computes a modulo-11 check digit over digits, weighting the
// first digit with firstWeight and counting down to 2. Raw values over 9
// collapse to 0.
func checkDigit(digits []int, firstWeight int) int {
	sum := 0
	for i, d := range digits {
		sum += d * (firstWeight - i)
	}
	d := 11 - sum%11
	if d > 9 {
		return 0
	}
	return d
}
