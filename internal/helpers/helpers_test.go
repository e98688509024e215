package helpers_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jroosing/apexdns/internal/helpers"
)

func TestClampInt(t *testing.T) {
	assert.Equal(t, 5, helpers.ClampInt(5, 0, 10))
	assert.Equal(t, 0, helpers.ClampInt(-3, 0, 10))
	assert.Equal(t, 10, helpers.ClampInt(42, 0, 10))
}

func TestClampIntToUint16(t *testing.T) {
	tests := []struct {
		in   int
		want uint16
	}{
		{0, 0},
		{-1, 0},
		{1232, 1232},
		{math.MaxUint16, math.MaxUint16},
		{math.MaxUint16 + 1, math.MaxUint16},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, helpers.ClampIntToUint16(tc.in), "in=%d", tc.in)
	}
}
