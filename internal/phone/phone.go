package phone

import "strings"

// Normalized is a US phone number in its three useful shapes.
type Normalized struct {
	Digits    string
	Formatted string
	E164      string
}

// Normalize strips a US phone number down to ten digits, dropping a leading
// country code. Returns nil when the input is not a US number.
func Normalize(input string) *Normalized {
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return nil
	}
	return &Normalized{
		Digits:    digits,
		Formatted: formatDigits(digits),
		E164:      "+1" + digits,
	}
}

func IsValid(input string) bool {
	return Normalize(input) != nil
}

func formatDigits(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	if len(digits) <= 6 {
		return digits[:3] + "-" + digits[3:]
	}
	return digits[:3] + "-" + digits[3:6] + "-" + digits[6:]
}
