package currency

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrPrecision means an amount carries more precision than the currency's
// minor unit can represent (e.g. 10.005 NGN).
var ErrPrecision = errors.New("amount has sub-minor-unit precision")

// ToMinorUnits converts a major-unit amount to its minor-unit integer
// representation (kobo/cents). The conversion is exact: amounts that do not
// land on a whole minor unit are rejected rather than rounded.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	minor := amount.Shift(2)
	if !minor.IsInteger() {
		return 0, ErrPrecision
	}
	return minor.IntPart(), nil
}

// FromMinorUnits converts a minor-unit integer back to a major-unit amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-2)
}
