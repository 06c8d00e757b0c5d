package lx200

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// The AM mounts accept and report angles as sexagesimal strings. Separators
// vary between commands (':' for RA, '*' for declination and site
// coordinates), so the parser accepts any non-numeric separator.

// formatRA renders hours as "HH:MM:SS".
func formatRA(hours float64) string {
	d, m, s := split60(math.Abs(hours))
	return fmt.Sprintf("%02d:%02d:%02.0f", d, m, s)
}

// formatDec renders degrees as "+DD*MM:SS". The sign is always emitted, even
// for -0°.
func formatDec(degrees float64) string {
	d, m, s := split60(math.Abs(degrees))
	return fmt.Sprintf("%c%02d*%02d:%02.0f", signOf(degrees), d, m, s)
}

// formatLatitude renders degrees as "+DD*MM".
func formatLatitude(degrees float64) string {
	d, m, _ := splitRounded(math.Abs(degrees))
	return fmt.Sprintf("%c%02d*%02d", signOf(degrees), d, m)
}

// formatLongitude renders degrees as "DDD*MM", the unsigned form the Sg
// command wants.
func formatLongitude(degrees float64) string {
	d, m, _ := splitRounded(math.Abs(degrees))
	return fmt.Sprintf("%03d*%02d", d, m)
}

func signOf(v float64) byte {
	if math.Signbit(v) {
		return '-'
	}
	return '+'
}

func split60(v float64) (int, int, float64) {
	d := int(v)
	rem := (v - float64(d)) * 60
	m := int(rem)
	return d, m, (rem - float64(m)) * 60
}

// splitRounded rounds to whole minutes so "41*59.9" does not truncate down
// to "41*59".
func splitRounded(v float64) (int, int, float64) {
	total := int(math.Round(v * 60))
	return total / 60, total % 60, 0
}

// parseSexagesimal decodes strings like "12:30:45", "+45*07:12", "-05*30" or
// "359*59" into a float. Missing seconds are treated as zero.
func parseSexagesimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty sexagesimal value")
	}

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if len(fields) < 2 || len(fields) > 3 {
		return 0, fmt.Errorf("malformed sexagesimal value %q", s)
	}

	var parts [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed sexagesimal value %q", s)
		}
		parts[i] = v
	}

	value := parts[0] + parts[1]/60 + parts[2]/3600
	if negative {
		value = -value
	}
	return value, nil
}
