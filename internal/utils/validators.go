package utils

import (
	"strings"
)

// IsValidEmail checks that the string looks like a single address: one "@",
// a dotted domain and no whitespace. Survey header rows and import markers
// fail this check.
func IsValidEmail(email string) bool {
	if strings.ContainsAny(email, " \t\n\"{}") {
		return false
	}
	at := strings.Index(email, "@")
	if at <= 0 || at != strings.LastIndex(email, "@") {
		return false
	}
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

// NormaliseEmail trims and lowercases an address.
func NormaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailDomain returns the part after "@", or "" when there is none.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return email[at+1:]
}

// IsExcludedEmail reports whether an address is on the deny-list or belongs
// to an excluded domain. Inputs are expected normalised.
func IsExcludedEmail(email string, denied, domains []string) bool {
	for _, d := range denied {
		if email == NormaliseEmail(d) {
			return true
		}
	}
	domain := EmailDomain(email)
	for _, d := range domains {
		if d = NormaliseEmail(d); domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}
