package format

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Degrees renders an angle given in radians, e.g. "-170°" or "12.5°".
func Degrees(radians float64) string {
	d := math.Round(radians*180/math.Pi*10) / 10
	if d == 0 {
		// avoid "-0°"
		d = 0
	}
	return strconv.FormatFloat(d, 'f', -1, 64) + "°"
}

// DegreesList renders angles as "[0°, 10°, -10°]".
func DegreesList(radians []float64) string {
	parts := make([]string, len(radians))
	for i, r := range radians {
		parts[i] = Degrees(r)
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, ", "))
}
