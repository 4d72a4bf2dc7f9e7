package calls

import "strings"

// FormatPhone normalizes a dialable number to E.164, assuming US numbers
// when no country code is present. It returns "" when value has no digits.
func FormatPhone(value string) string {
	value = strings.TrimSpace(value)
	digits := digitsOnly(value)
	if digits == "" {
		return ""
	}
	switch {
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	default:
		return "+" + digits
	}
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
