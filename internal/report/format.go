package report

import (
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// NotAvailable is shown in place of an absent metric.
const NotAvailable = "N/A"

var usPrinter = message.NewPrinter(language.AmericanEnglish)

// FormatPercent renders v with exactly two decimals and a percent sign.
func FormatPercent(v *float64) string {
	if !finite(v) {
		return NotAvailable
	}
	out := exactDecimal(*v).StringFixed(2)
	if *v < 0 && !strings.HasPrefix(out, "-") {
		// Negative values that round to zero keep their sign.
		out = "-" + out
	}
	return out + "%"
}

// FormatCurrency renders v as dollars with grouped thousands and at most
// three fraction digits.
func FormatCurrency(v *float64) string {
	if !finite(v) {
		return NotAvailable
	}
	rounded, _ := exactDecimal(*v).Round(3).Float64()
	return "$" + usPrinter.Sprint(number.Decimal(rounded, number.MaxFractionDigits(3)))
}

// MetricLines returns the three labeled metric lines in display order.
func MetricLines(data ReportData) []string {
	return []string{
		"YoY Revenue Change: " + FormatPercent(data.YoYChange),
		"QoQ Revenue Change: " + FormatPercent(data.QoQChange),
		"Total Revenue: " + FormatCurrency(data.TotalRevenue),
	}
}

// exactDecimal returns the exact binary value of v, not its shortest form.
func exactDecimal(v float64) decimal.Decimal {
	d, err := decimal.NewFromString(new(big.Float).SetFloat64(v).Text('f', 1100))
	if err != nil {
		return decimal.NewFromFloat(v)
	}
	return d
}

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}
