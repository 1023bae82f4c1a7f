package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "street type with unit hash", input: "123 Main St. #5", want: "123 MAIN STREET 5"},
		{name: "directional and apartment", input: "789 SW 1st Blvd, Apt #4", want: "789 SOUTHWEST 1ST BOULEVARD APT 4"},
		{name: "hyphenated house number", input: "123-B Main St.", want: "123-B MAIN STREET"},
		{name: "whitespace collapsed", input: "  456   Oak   Ave  ", want: "456 OAK AVENUE"},
		{name: "unit letter not expanded", input: "10 Pine Rd Apt E", want: "10 PINE ROAD APT E"},
		{name: "diacritics removed", input: "12 Peña Ln", want: "12 PENA LANE"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestPrimary(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "unit removed", input: "123 Main St Apt 4", want: "123 MAIN STREET"},
		{name: "hash unit removed", input: "123 Main St #5", want: "123 MAIN STREET"},
		{name: "suite removed", input: "500 Market Pkwy Suite 210", want: "500 MARKET PARKWAY"},
		{name: "secondary line dropped", input: "123 Main St, Springfield, WA 98123", want: "123 MAIN STREET"},
		{name: "apartment hash chain", input: "789 SW 1st Blvd Apt #4", want: "789 SOUTHWEST 1ST BOULEVARD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Primary(tt.input))
		})
	}
}

func TestTokenSortRatio(t *testing.T) {
	assert.Equal(t, 100, TokenSortRatio("123 MAIN STREET", "MAIN STREET 123"))
	assert.Equal(t, 87, TokenSortRatio("125 MIAN STREET", "125 MAIN STREET"))
	assert.Equal(t, 100, TokenSortRatio("", ""))
	assert.Less(t, TokenSortRatio("125 MAIN STREET", "9 ELM COURT"), 50)
}

func TestTokenSortRatioIsMonotonic(t *testing.T) {
	target := "125 MAIN STREET"
	closer := "125 MAIN STREEX"
	farther := "125 MAIN STRXXX"

	assert.GreaterOrEqual(t, TokenSortRatio(closer, target), TokenSortRatio(farther, target))
}
