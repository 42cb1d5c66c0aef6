package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidISIN(t *testing.T) {
	tests := []struct {
		isin string
		want bool
	}{
		{"US0378331005", true},  // Apple
		{"US5949181045", true},  // Microsoft
		{"FR0011550185", true},  // BNP Paribas Easy S&P 500
		{"LU0908500753", true},  // Amundi Stoxx Europe 600
		{"IE00B4L5Y983", true},  // iShares Core MSCI World
		{"US0378331006", false}, // bad check digit
		{"US037833100", false},  // too short
		{"us0378331005", false}, // lower case
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.isin, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidISIN(tt.isin))
		})
	}
}

func TestValidCUSIP(t *testing.T) {
	assert.True(t, ValidCUSIP("037833100"))
	assert.True(t, ValidCUSIP("594918104"))
	assert.False(t, ValidCUSIP("037833101"))
	assert.False(t, ValidCUSIP("03783310"))
}

func TestISINFromCUSIP(t *testing.T) {
	assert.Equal(t, "US0378331005", ISINFromCUSIP("037833100", "US"))
	assert.Equal(t, "US5949181045", ISINFromCUSIP(" 594918104 ", ""))
	assert.Empty(t, ISINFromCUSIP("bad", "US"))
	assert.True(t, ValidISIN(ISINFromCUSIP("037833100", "CA")))
}

func TestClean(t *testing.T) {
	assert.Equal(t, "US0378331005", Clean(" us 0378-331005 "))
}

func TestCountry(t *testing.T) {
	assert.Equal(t, "US", Country("US0378331005"))
	assert.Equal(t, "", Country("XS1234567890"))
	assert.Equal(t, "", Country("X"))
}

func TestISINInText(t *testing.T) {
	found := ISINInText.FindAllString("APPLE INC US0378331005 1 234 5,6 MICROSOFT US5949181045", -1)
	assert.Equal(t, []string{"US0378331005", "US5949181045"}, found)
}
