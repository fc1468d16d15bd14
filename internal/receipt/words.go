// Package receipt formats fetched receipt records and exports them as PDF.
package receipt

import (
	"math"
	"strings"
)

var (
	ones  = []string{"", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}
	teens = []string{"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen", "seventeen", "eighteen", "nineteen"}
	tens  = []string{"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety"}
)

// Words spells a non-negative whole number in short-scale English.
func Words(n int64) string {
	if n == 0 {
		return "zero"
	}

	var b strings.Builder
	billion := n / 1_000_000_000
	million := (n % 1_000_000_000) / 1_000_000
	thousand := (n % 1_000_000) / 1_000
	remainder := n % 1_000

	if billion > 0 {
		b.WriteString(hundreds(billion) + "billion ")
	}
	if million > 0 {
		b.WriteString(hundreds(million) + "million ")
	}
	if thousand > 0 {
		b.WriteString(hundreds(thousand) + "thousand ")
	}
	if remainder > 0 {
		b.WriteString(hundreds(remainder))
	}
	return strings.TrimSpace(b.String())
}

func hundreds(n int64) string {
	var b strings.Builder
	if n >= 100 {
		b.WriteString(ones[n/100] + " hundred ")
		n %= 100
	}
	if n >= 20 {
		b.WriteString(tens[n/10] + " ")
		n %= 10
	} else if n >= 10 {
		b.WriteString(teens[n-10] + " ")
		return b.String()
	}
	if n > 0 {
		b.WriteString(ones[n] + " ")
	}
	return b.String()
}

// AmountInWords renders a naira amount in words. The minor unit is rounded
// (not truncated) to two digits; it is spelled out only when nonzero,
// otherwise the fixed "only" suffix is appended.
func AmountInWords(amount float64) string {
	naira := int64(math.Floor(amount))
	// Amounts arrive as decimal strings; the nearest float64 can sit just
	// under the true value (100.005 -> 100.00499...), so nudge before
	// rounding the kobo half up.
	kobo := int64(math.Round((amount-float64(naira))*100 + 1e-9))
	if kobo >= 100 {
		naira++
		kobo -= 100
	}

	words := Words(naira)
	if kobo > 0 {
		return words + " naira, " + Words(kobo) + " kobo"
	}
	return words + " naira only"
}
