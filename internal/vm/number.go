package vm

import (
	"math"
	"strconv"
)

// formatNumber implements enough of JS's Number::toString (radix 10) for
// the VM's own property-key coercion and default string conversion: NaN,
// the two Infinities, -0 printed as "0", and otherwise the shortest
// round-tripping decimal, matching strconv's 'g'-style shortest form.
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
