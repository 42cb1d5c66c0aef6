package reportdate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExtract(t *testing.T) {
	tests := []struct {
		text   string
		target time.Time
		want   time.Time
		ok     bool
	}{
		{"Annual report 31 December 2023", time.Time{}, day(2023, 12, 31), true},
		{"Rapport semestriel au 30 juin 2024", time.Time{}, day(2024, 6, 30), true},
		{"Jahresbericht zum 31. Dezember 2023", time.Time{}, day(2023, 12, 31), true},
		{"Halbjahresbericht zum 30.06.2024", time.Time{}, day(2024, 6, 30), true},
		{"Holdings as of June 30, 2024", time.Time{}, day(2024, 6, 30), true},
		{"Report 2024-03-31", time.Time{}, day(2024, 3, 31), true},
		{"Report 31/03/2024", time.Time{}, day(2024, 3, 31), true},
		{"Report 03/31/2024", time.Time{}, day(2024, 3, 31), true},
		{"Annual Report 2023", time.Time{}, day(2023, 12, 31), true},
		{"Annual Report 2023", day(2024, 6, 30), day(2023, 6, 30), true},
		{"no date here", time.Time{}, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := Extract(tt.text, tt.target)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestExtract_RejectsImpossibleDates(t *testing.T) {
	got, ok := Extract("Report 31.06.2024", time.Time{})
	// 31 June is skipped; the bare year still matches.
	assert.True(t, ok)
	assert.True(t, day(2024, 12, 31).Equal(got))
}

func TestExtractExact(t *testing.T) {
	_, ok := ExtractExact("Annual Report 2023")
	assert.False(t, ok)

	got, ok := ExtractExact("Statement of investments as at 31 December 2023")
	assert.True(t, ok)
	assert.True(t, day(2023, 12, 31).Equal(got))
}

func TestParseISO(t *testing.T) {
	got, ok := ParseISO("2024-06-30")
	assert.True(t, ok)
	assert.True(t, day(2024, 6, 30).Equal(got))

	got, ok = ParseISO("2024-04-30T22:00:00+02:00")
	assert.True(t, ok)
	assert.True(t, day(2024, 4, 30).Equal(got))

	got, ok = ParseISO("2024-06-30 00:00:00")
	assert.True(t, ok)
	assert.True(t, day(2024, 6, 30).Equal(got))

	_, ok = ParseISO("")
	assert.False(t, ok)
	_, ok = ParseISO("30/06/2024")
	assert.False(t, ok)
}
