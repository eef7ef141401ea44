package numeric

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		in     string
		scale  int32
		paid   bool
		want   string
	}{
		{"loss paid rounds up", TowardLoss, "100.0001", 2, true, "100.01"},
		{"loss received rounds down", TowardLoss, "101.9999", 2, false, "101.99"},
		{"loss exact is unchanged", TowardLoss, "100.25", 2, true, "100.25"},
		{"safety ignores paid", TowardSafety, "3.14159", 3, true, "3.141"},
		{"safety rounds down", TowardSafety, "0.0099", 2, false, "0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Round(tc.policy, MustParse(tc.in), tc.scale, tc.paid)
			assert.True(t, MustParse(tc.want).Equal(got), "got %s want %s", got, tc.want)
		})
	}
}

func TestRoundUnknownPolicyPanics(t *testing.T) {
	assert.Panics(t, func() { Round(Policy(0), One, 2, true) })
}

func TestDiv(t *testing.T) {
	t.Run("truncates at working scale", func(t *testing.T) {
		got := Div(One, MustParse("3"))
		assert.Equal(t, WorkingScale, -got.Exponent())
		assert.True(t, got.LessThan(MustParse("0.3333333333333333333333334")))
		assert.True(t, got.GreaterThan(MustParse("0.3333333333333333333333332")))
	})
	t.Run("zero divisor", func(t *testing.T) {
		assert.True(t, Div(One, Zero).IsZero())
	})
}

func TestNetOfFee(t *testing.T) {
	got := NetOfFee(MustParse("100"), MustParse("0.002"))
	assert.True(t, MustParse("99.8").Equal(got))
}

func TestFitsScale(t *testing.T) {
	assert.True(t, FitsScale(MustParse("1.25"), 2))
	assert.False(t, FitsScale(MustParse("1.255"), 2))
	assert.True(t, FitsScale(MustParse("7"), 0))
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "toward_loss", TowardLoss.String())
	assert.Equal(t, "toward_safety", TowardSafety.String())
	assert.Equal(t, "unknown", Policy(9).String())
}
