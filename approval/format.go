/*
format.go - Display formatting for amounts and dates

These formats are product decisions and are reproduced literally:

  Currency:  ₹ prefix, Indian digit grouping (12,34,567), no fraction digits,
             whatever the viewer's locale.
  Date:      "<day> <Month> on <HH>:<MM>", 24-hour clock, e.g.
             "21 March on 15:30". Unparseable input is returned as is.
  Words:     Indian scale (Crore = 1,00,00,000; Lakh = 1,00,000; Thousand),
             e.g. 1234567 -> "Twelve Lakh Thirty Four Thousand Five Hundred
             and Sixty Seven". Zero is "Zero".
*/
package approval

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const CurrencySymbol = "₹"

// =============================================================================
// CURRENCY
// =============================================================================

// indianDigits groups 1234567 as 12,34,567.
var indianDigits = message.NewPrinter(language.MustParse("en-IN"))

// FormatCurrency renders an amount as Indian rupees, rounded half away from
// zero to whole rupees.
func FormatCurrency(amount decimal.Decimal) string {
	rounded := amount.Round(0)
	grouped := indianDigits.Sprintf("%d", rounded.Abs().IntPart())
	if rounded.IsNegative() {
		return "-" + CurrencySymbol + grouped
	}
	return CurrencySymbol + grouped
}

// =============================================================================
// DATES
// =============================================================================

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// DateFormatter renders dates in a fixed location. Strings without a zone
// are read in that location too.
type DateFormatter struct {
	Location *time.Location
}

func (f DateFormatter) location() *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}

// Format returns "<day> <Month> on <HH>:<MM>" or raw when it cannot be parsed.
func (f DateFormatter) Format(raw string) string {
	t, ok := f.Parse(raw)
	if !ok {
		return raw
	}
	return FormatTime(t.In(f.location()))
}

// Parse tries the layouts the backend is known to send.
func (f DateFormatter) Parse(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, f.location()); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTime renders t without changing its location.
func FormatTime(t time.Time) string {
	return fmt.Sprintf("%d %s on %02d:%02d", t.Day(), t.Month(), t.Hour(), t.Minute())
}

// FormatDate formats in UTC.
func FormatDate(raw string) string {
	return DateFormatter{}.Format(raw)
}

// =============================================================================
// NUMBER TO WORDS (Indian scale)
// =============================================================================

var (
	ones = []string{
		"", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine",
		"Ten", "Eleven", "Twelve", "Thirteen", "Fourteen", "Fifteen", "Sixteen",
		"Seventeen", "Eighteen", "Nineteen",
	}
	tens = []string{
		"", "", "Twenty", "Thirty", "Forty", "Fifty", "Sixty", "Seventy", "Eighty", "Ninety",
	}
)

const (
	crore    = 10_000_000
	lakh     = 100_000
	thousand = 1_000
)

// NumberToWords spells n using Crore, Lakh, Thousand and Hundred.
func NumberToWords(n int64) string {
	if n == 0 {
		return "Zero"
	}
	if n < 0 {
		// -(n+1)+1 keeps math.MinInt64 in range
		return "Minus " + wordsFor(uint64(-(n+1))+1)
	}
	return wordsFor(uint64(n))
}

// AmountInWords spells an amount rounded to whole rupees.
func AmountInWords(amount decimal.Decimal) string {
	return NumberToWords(amount.Round(0).IntPart())
}

func wordsFor(n uint64) string {
	var parts []string

	if c := n / crore; c > 0 {
		// Crores are not scaled further: 100 crore is "One Hundred Crore".
		parts = append(parts, wordsFor(c)+" Crore")
	}
	rest := n % crore
	if l := rest / lakh; l > 0 {
		parts = append(parts, belowHundred(l)+" Lakh")
	}
	if t := (rest % lakh) / thousand; t > 0 {
		parts = append(parts, belowHundred(t)+" Thousand")
	}
	if h := rest % thousand; h > 0 {
		parts = append(parts, belowThousand(h))
	}
	return strings.Join(parts, " ")
}

func belowThousand(n uint64) string {
	h, r := n/100, n%100
	switch {
	case h == 0:
		return belowHundred(r)
	case r == 0:
		return ones[h] + " Hundred"
	default:
		return ones[h] + " Hundred and " + belowHundred(r)
	}
}

func belowHundred(n uint64) string {
	if n < 20 {
		return ones[n]
	}
	if n%10 == 0 {
		return tens[n/10]
	}
	return tens[n/10] + " " + ones[n%10]
}
