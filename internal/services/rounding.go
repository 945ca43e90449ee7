package services

import "github.com/shopspring/decimal"

// round rounds v to places decimals, half away from zero, in exact decimal
// arithmetic (so 2.25 -> 2.3 and 3.665 -> 3.67 regardless of float drift).
func round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
