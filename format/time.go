package format

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// HumanDuration approximates d in words, e.g. "About a minute" or "5 hours".
func HumanDuration(d time.Duration) string {
	return HumanDurationWithCase(d, true)
}

// HumanDurationWithCase is HumanDuration with the capitalization of the
// leading word of the approximate forms under the caller's control.
func HumanDurationWithCase(d time.Duration, useCaps bool) string {
	about := func(s string) string {
		if useCaps {
			return strings.ToUpper(s[:1]) + s[1:]
		}
		return s
	}

	if s := int(d.Seconds()); s < 1 {
		return about("less than a second")
	} else if s < 60 {
		return plural(s, "second")
	}

	if m := int(d.Minutes()); m == 1 {
		return about("about a minute")
	} else if m < 60 {
		return plural(m, "minute")
	}

	switch h := int(math.Round(d.Hours())); {
	case h == 1:
		return about("about an hour")
	case h < 48:
		return plural(h, "hour")
	default:
		return plural(h/24, "day")
	}
}

// ExactDuration spells out d down to the second, or in milliseconds when it
// is shorter than a second, e.g. "1 hour 3 minutes 2 seconds".
func ExactDuration(d time.Duration) string {
	if d < time.Second {
		return plural(int(d.Milliseconds()), "millisecond")
	}

	d = d.Truncate(time.Second)
	parts := []struct {
		n    int
		unit string
	}{
		{int(d / time.Hour), "hour"},
		{int(d % time.Hour / time.Minute), "minute"},
		{int(d % time.Minute / time.Second), "second"},
	}

	var words []string
	for _, p := range parts {
		if p.n > 0 {
			words = append(words, plural(p.n, p.unit))
		}
	}
	return strings.Join(words, " ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
