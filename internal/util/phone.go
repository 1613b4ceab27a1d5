package util

import (
	"regexp"
	"strings"
)

var phoneNoise = regexp.MustCompile(`[\s\-\.\(\)/]+`)

// NormalizePhone strips formatting from a dialable address and turns a leading
// "00" international prefix into "+". Alphanumeric sender ids pass through unchanged.
func NormalizePhone(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}

	digits := phoneNoise.ReplaceAllString(s, "")
	if !isDialable(digits) {
		return s
	}

	if strings.HasPrefix(digits, "00") {
		digits = "+" + digits[2:]
	}

	return digits
}

func isDialable(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '+' && i == 0 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
