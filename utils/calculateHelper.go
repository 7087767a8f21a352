package utils

import "github.com/shopspring/decimal"

var decimalOneHundred = decimal.NewFromInt(100)

// CalculatePercentAmount returns amount * rate / 100, rounded to 4 places.
// Tax and service charge rates are plain percentages (11 means 11%).
func CalculatePercentAmount(amount decimal.Decimal, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() || amount.IsZero() {
		return decimal.Zero
	}
	return amount.Mul(rate).DivRound(decimalOneHundred, 4)
}

// CalculateDiscountAmount resolves a discount to an absolute amount.
// discountType "P" is a percentage of subTotal; anything else is a fixed amount.
func CalculateDiscountAmount(subTotal decimal.Decimal, discount decimal.Decimal, discountType string) decimal.Decimal {
	var discountAmount decimal.Decimal

	if discount.GreaterThan(decimal.Zero) {
		if discountType == "P" {
			discountAmount = subTotal.Mul(discount).DivRound(decimalOneHundred, 4)
		} else {
			discountAmount = discount
		}
	} else {
		discountAmount = decimal.Zero
	}

	return discountAmount
}
