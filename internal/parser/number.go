package parser

import (
	"strings"

	"github.com/shopspring/decimal"
)

var numberNoise = strings.NewReplacer(
	"\u00a0", "", "\u2009", "", "\u202f", "", "'", "", "\u2019", "",
	"€", "", "$", "", "£", "", "%", "",
	"CHF", "", "EUR", "", "USD", "", "GBP", "",
)

var nullTokens = map[string]bool{"": true, "-": true, "–": true, "—": true, "n/a": true, "na": true, "n.a.": true, "nil": true}

// ParseNumber reads a number written in English, French, German, or Swiss
// notation. Parentheses or a trailing minus mean negative. Blank cells and
// placeholders such as "-" or "n/a" give a null value, as does anything
// that is not a number.
func ParseNumber(s string) decimal.NullDecimal {
	s = strings.TrimSpace(numberNoise.Replace(strings.TrimSpace(s)))
	if nullTokens[strings.ToLower(s)] {
		return decimal.NullDecimal{}
	}

	neg := false
	switch {
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		neg, s = true, s[1:len(s)-1]
	case strings.HasSuffix(s, "-"):
		neg, s = true, s[:len(s)-1]
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		neg, s = !neg, s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return decimal.NullDecimal{}
	}

	s = normalizeSeparators(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	if neg {
		d = d.Neg()
	}
	return decimal.NewNullDecimal(d)
}

// normalizeSeparators rewrites s to use '.' as the only decimal separator.
func normalizeSeparators(s string) string {
	lastDot, lastComma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// 1.234.567,89
			return strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
		}
		// 1,234,567.89
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return strings.ReplaceAll(s, ",", "")
		}
		intPart, frac := s[:lastComma], s[lastComma+1:]
		if len(frac) == 3 && intPart != "" && intPart != "0" {
			// 1,234 is a thousands group; 0,125 and 12,5 are decimals.
			return intPart + frac
		}
		return intPart + "." + frac
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			return strings.ReplaceAll(s, ".", "")
		}
		return s
	default:
		return s
	}
}
