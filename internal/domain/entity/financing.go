package entity

import "github.com/shopspring/decimal"

// PossibleFinancing returns amount * (1 - score)
func PossibleFinancing(amount, score float64) float64 {
	a := decimal.NewFromFloat(amount)
	s := decimal.NewFromFloat(score)
	f, _ := a.Mul(decimal.NewFromInt(1).Sub(s)).Float64()
	return f
}
