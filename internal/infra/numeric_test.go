package infra

import (
	"math"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Numeric Tests ---

func TestNumericToInt64(t *testing.T) {
	tooBig := new(big.Int).Add(big.NewInt(math.MaxInt64), big.NewInt(1))

	tests := []struct {
		name    string
		in      pgtype.Numeric
		want    int64
		wantErr string
	}{
		{"tier price", Int64ToNumeric(250000), 250000, ""},
		{"free tier", Int64ToNumeric(0), 0, ""},
		{"largest numeric(15,0)", Int64ToNumeric(999_999_999_999_999), 999_999_999_999_999, ""},
		{"scaled up", pgtype.Numeric{Int: big.NewInt(25), Exp: 3, Valid: true}, 25000, ""},
		{"fraction truncated", pgtype.Numeric{Int: big.NewInt(150099), Exp: -2, Valid: true}, 1500, ""},
		{"null amount", pgtype.Numeric{}, 0, "NULL"},
		{"overflow", pgtype.Numeric{Int: tooBig, Valid: true}, 0, "overflows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NumericToInt64(tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMinorToMajor_PreferenceUnitPrice(t *testing.T) {
	assert.Equal(t, 2500.0, MinorToMajor(250000))
	assert.Equal(t, 0.5, MinorToMajor(50))
}

func TestMajorToMinor_GatewayAmounts(t *testing.T) {
	tests := map[float64]int64{
		2500:    250000,
		19.99:   1999,
		1234.56: 123456,
		-2.5:    -250,
	}
	for in, want := range tests {
		assert.Equal(t, want, MajorToMinor(in), "amount %v", in)
	}
}
