// Package money renders predicted charges as US dollar amounts.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ErrNotFinite is returned for NaN or infinite amounts.
var ErrNotFinite = errors.New("amount is not finite")

var printer = message.NewPrinter(language.English)

// Round converts a charge to a decimal rounded half away from zero to cents.
func Round(v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero, ErrNotFinite
	}
	return decimal.NewFromFloat(v).Round(2), nil
}

// Format renders v as "$29,732.62". Negative amounts render as "-$5.50" and
// non-finite ones as "n/a".
func Format(v float64) string {
	d, err := Round(v)
	if err != nil {
		return "n/a"
	}

	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}

	whole := d.Truncate(0)
	cents := d.Sub(whole).Shift(2).IntPart()
	if whole.LessThanOrEqual(maxWhole) {
		return printer.Sprintf("%s$%d.%02d", sign, whole.IntPart(), cents)
	}
	return fmt.Sprintf("%s$%s.%02d", sign, groupThousands(whole.String()), cents)
}

// maxWhole is the largest whole-dollar amount IntPart represents exactly.
var maxWhole = decimal.NewFromInt(math.MaxInt64)

func groupThousands(digits string) string {
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
