package infra

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
)

// Money columns are numeric(15,0) holding minor units (cents).

// NumericToInt64 reads a numeric(15,0) amount. NULL and values outside int64
// are errors; a negative exponent truncates the fractional digits.
func NumericToInt64(n pgtype.Numeric) (int64, error) {
	if !n.Valid {
		return 0, fmt.Errorf("numeric value is NULL")
	}

	v := new(big.Int).Set(n.Int)
	switch {
	case n.Exp > 0:
		v.Mul(v, pow10(int64(n.Exp)))
	case n.Exp < 0:
		v.Quo(v, pow10(int64(-n.Exp)))
	}

	if !v.IsInt64() {
		return 0, fmt.Errorf("numeric value %s overflows int64", v.String())
	}
	return v.Int64(), nil
}

// Int64ToNumeric encodes an amount for a numeric(15,0) column.
func Int64ToNumeric(v int64) pgtype.Numeric {
	return pgtype.Numeric{
		Int:              big.NewInt(v),
		InfinityModifier: pgtype.Finite,
		Valid:            true,
	}
}

// MinorToMajor converts cents to the decimal unit price MercadoPago expects.
func MinorToMajor(cents int64) float64 {
	return float64(cents) / 100
}

// MajorToMinor converts a gateway decimal amount back to cents, rounding to
// the nearest cent.
func MajorToMinor(amount float64) int64 {
	if amount < 0 {
		return -int64(-amount*100 + 0.5)
	}
	return int64(amount*100 + 0.5)
}

func pow10(exp int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
}
