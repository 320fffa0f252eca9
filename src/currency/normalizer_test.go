package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		scale int32
		want  int64
	}{
		{"price at scale 4", "153,2600", ScalePrice, 1532600},
		{"negative cents", "-1072,82", ScaleMinor, -107282},
		{"integer", "42", ScaleMinor, 4200},
		{"dot separator", "12.5", ScaleMinor, 1250},
		{"quoted with spaces", ` " 7,10 " `, ScaleMinor, 710},
		{"zero", "0,00", ScaleMinor, 0},
		{"half rounds up", "0,005", ScaleMinor, 1},
		{"below half rounds down", "0,0049999", ScaleMinor, 0},
		{"negative half rounds away from zero", "-0,005", ScaleMinor, -1},
		{"binary float trap", "1,015", ScaleMinor, 102},
		{"binary float trap price", "0,00015", ScalePrice, 2},
		{"long fraction truncated by rounding", "2,3456789", ScalePrice, 23457},
		{"quantity", "-0,1234567891", ScaleQuantity, -1234567891},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input, tt.scale)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeRejects(t *testing.T) {
	_, err := Normalize("", ScaleMinor)
	assert.ErrorIs(t, err, ErrAbsent)
	_, err = Normalize(`  ""  `, ScaleMinor)
	assert.ErrorIs(t, err, ErrAbsent)

	for _, bad := range []string{"1.234,56", "abc", "1,", ",5", "--1", "1e5", "1 000"} {
		_, err := Normalize(bad, ScaleMinor)
		assert.ErrorIs(t, err, ErrInvalidDecimal, bad)
	}

	_, err = Normalize("99999999999999999999", ScaleMinor)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestFormatRoundTrip(t *testing.T) {
	inputs := []string{"153,2600", "-1072,82", "0,005", "-0,005", "0", "123456789,987654321"}
	for _, scale := range []int32{ScaleMinor, ScalePrice, ScaleQuantity} {
		for _, in := range inputs {
			v, err := Normalize(in, scale)
			require.NoError(t, err)
			again, err := Normalize(Format(v, scale), scale)
			require.NoError(t, err)
			assert.Equal(t, v, again, "%s at scale %d", in, scale)
		}
	}
	assert.Equal(t, "-125,23", Format(-12523, ScaleMinor))
	assert.Equal(t, "0,0100", Format(100, ScalePrice))
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "€125.23", Display(12523, "EUR"))
	assert.Equal(t, "-$0.50", Display(-50, "USD"))
	assert.Equal(t, "1,00 XXZ", Display(100, "XXZ"))
}
