package lifecycle

import (
	"fmt"
	"strconv"
	"strings"
)

// FirstCanvasName is given to the very first canvas ever created.
const FirstCanvasName = "the big bang"

var romanNumerals = []struct {
	value   int
	numeral string
}{
	{1000, "M"},
	{900, "CM"},
	{500, "D"},
	{400, "CD"},
	{100, "C"},
	{90, "XC"},
	{50, "L"},
	{40, "XL"},
	{10, "X"},
	{9, "IX"},
	{5, "V"},
	{4, "IV"},
	{1, "I"},
}

// ToRoman converts n to Roman numerals. Values outside 1..3999 are
// returned as decimal.
func ToRoman(n int) string {
	if n < 1 || n > 3999 {
		return strconv.Itoa(n)
	}

	var sb strings.Builder
	for _, r := range romanNumerals {
		for n >= r.value {
			sb.WriteString(r.numeral)
			n -= r.value
		}
	}

	return sb.String()
}

// RomanDate formats a YYYY-MM-DD date as month.day.year in Roman numerals,
// e.g. 2026-01-13 becomes I.XIII.MMXXVI.
func RomanDate(date string) (string, error) {
	d, err := ParseDate(date)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", date, err)
	}

	return fmt.Sprintf("%s.%s.%s",
		ToRoman(int(d.Month())),
		ToRoman(d.Day()),
		ToRoman(d.Year()),
	), nil
}

// CanvasName returns the name for a canvas dated date.
func CanvasName(date string, first bool) (string, error) {
	if first {
		return FirstCanvasName, nil
	}
	return RomanDate(date)
}
