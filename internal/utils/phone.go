package utils

import (
	"regexp"
	"strings"
)

// localMobileRegex matches an 11-digit Bangladeshi mobile number in local form.
var localMobileRegex = regexp.MustCompile(`^01[3-9][0-9]{8}$`)

// NormalizePhoneBD strips separators and the country code so that
// "+880 1712-345678", "8801712345678" and "01712345678" compare equal.
func NormalizePhoneBD(phone string) string {
	p := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)

	if strings.HasPrefix(p, "880") && len(p) == 13 {
		p = p[2:]
	}
	return p
}

// IsValidMobileBD reports whether phone, after normalization, is a local mobile number.
func IsValidMobileBD(phone string) bool {
	return localMobileRegex.MatchString(NormalizePhoneBD(phone))
}
