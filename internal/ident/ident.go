// Package ident validates and converts security identifiers.
package ident

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	isinPattern  = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)
	cusipPattern = regexp.MustCompile(`^[0-9A-Z*@#]{8}[0-9]$`)

	// ISINInText finds ISIN-shaped tokens in free text.
	ISINInText = regexp.MustCompile(`\b[A-Z]{2}[A-Z0-9]{9}[0-9]\b`)
)

// Clean upper-cases an identifier and strips separators.
func Clean(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "-", "", ".", "", " ", "").Replace(s)
}

// ValidISIN reports whether s is a well-formed ISIN with a correct check digit.
func ValidISIN(s string) bool {
	if !isinPattern.MatchString(s) {
		return false
	}
	return isinCheckDigit(s[:11]) == int(s[11]-'0')
}

// ValidCUSIP reports whether s is a well-formed CUSIP with a correct check digit.
func ValidCUSIP(s string) bool {
	if !cusipPattern.MatchString(s) {
		return false
	}
	return cusipCheckDigit(s[:8]) == int(s[8]-'0')
}

// ISINFromCUSIP builds an ISIN for a North American CUSIP under the given
// country prefix (US or CA). It returns "" when the CUSIP is invalid.
func ISINFromCUSIP(cusip, country string) string {
	cusip = Clean(cusip)
	if !ValidCUSIP(cusip) {
		return ""
	}
	if country == "" {
		country = "US"
	}
	body := strings.ToUpper(country) + cusip
	return body + strconv.Itoa(isinCheckDigit(body))
}

// Country returns the ISO country prefix of an ISIN, skipping supranational codes.
func Country(isin string) string {
	if len(isin) < 2 {
		return ""
	}
	switch prefix := isin[:2]; prefix {
	case "XS", "EU", "XA", "XB", "XC", "XD":
		return ""
	default:
		return prefix
	}
}

// isinCheckDigit expands letters to two digits (A=10 ... Z=35) and applies Luhn.
func isinCheckDigit(body string) int {
	var digits []int
	for _, r := range body {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r >= 'A' && r <= 'Z':
			v := int(r-'A') + 10
			digits = append(digits, v/10, v%10)
		}
	}

	sum := 0
	double := true
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}

func cusipCheckDigit(body string) int {
	sum := 0
	for i, r := range body {
		var v int
		switch {
		case r >= '0' && r <= '9':
			v = int(r - '0')
		case r >= 'A' && r <= 'Z':
			v = int(r-'A') + 10
		case r == '*':
			v = 36
		case r == '@':
			v = 37
		case r == '#':
			v = 38
		}
		if i%2 == 1 {
			v *= 2
		}
		sum += v/10 + v%10
	}
	return (10 - sum%10) % 10
}
