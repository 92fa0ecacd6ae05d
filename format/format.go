// Package format renders counts, durations and angles for people.
package format

import "strconv"

var magnitudes = []struct {
	size   uint64
	suffix string
}{
	{1_000_000_000_000, "T"},
	{1_000_000_000, "B"},
	{1_000_000, "M"},
	{1_000, "K"},
}

// HumanNumber abbreviates n to three significant digits, e.g. 12.6K.
func HumanNumber(n uint64) string {
	for _, m := range magnitudes {
		if n >= m.size {
			return decimalPlace(float64(n)/float64(m.size)) + m.suffix
		}
	}
	return strconv.FormatUint(n, 10)
}

func decimalPlace(f float64) string {
	prec := 2
	switch {
	case f >= 100:
		prec = 0
	case f >= 10:
		prec = 1
	}
	return strconv.FormatFloat(f, 'f', prec, 64)
}
