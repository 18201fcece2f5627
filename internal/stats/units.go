package stats

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

const (
	mega             = 1_000_000
	kilo             = 1_000
	atomicPerDisplay = 100_000
	emissionMaxChars = 8
	satPerBTC        = 8 // decimal places
)

// FormatHashrate scales a raw H/s value to MH/s at or above 1,000,000 and
// KH/s below it, with two decimals.
func FormatHashrate(raw float64) string {
	if raw >= mega {
		return strconv.FormatFloat(raw/mega, 'f', 2, 64) + " MH/s"
	}
	return strconv.FormatFloat(raw/kilo, 'f', 2, 64) + " KH/s"
}

// FormatNetworkHashrate renders an already-scaled MH/s figure.
func FormatNetworkHashrate(mhs float64) string {
	return strconv.FormatFloat(mhs, 'f', 2, 64) + " MH/s"
}

// FormatEmission truncates coinbase/100000 to an integer and keeps at most
// the first eight characters of its decimal form.
func FormatEmission(coinbase float64) string {
	s := strconv.FormatFloat(math.Trunc(coinbase/atomicPerDisplay), 'f', 0, 64)
	if s == "-0" {
		s = "0"
	}
	return clampEmission(s)
}

func clampEmission(s string) string {
	if len(s) > emissionMaxChars {
		return s[:emissionMaxChars]
	}
	return s
}

// FormatPrice fixes the BTC price to eight decimals and converts it to
// satoshis, both with half-to-even rounding.
func FormatPrice(price decimal.Decimal) PriceSnapshot {
	return PriceSnapshot{
		BTC: price.StringFixedBank(satPerBTC),
		Sat: price.Shift(satPerBTC).RoundBank(0).IntPart(),
	}
}
