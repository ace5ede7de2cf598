// Package privacy holds redaction helpers applied before anything
// user-supplied is logged, stored, or echoed back.
package privacy

import (
	"net"
	"regexp"
	"strings"
)

// AnonymizeIP reduces an IP address to a coarse prefix suitable for logs.
// IPv4 keeps the first three octets, IPv6 the first three groups. Values
// that do not parse are replaced wholesale so raw input never leaks.
func AnonymizeIP(ip string) string {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return "invalid"
	}
	if v4 := parsed.To4(); v4 != nil {
		return strings.Join(strings.Split(v4.String(), ".")[:3], ".") + ".x"
	}
	groups := strings.Split(parsed.String(), ":")
	if len(groups) < 3 {
		return "anonymized"
	}
	return strings.Join(groups[:3], ":") + "::x"
}

// panCandidate matches digit runs of 13-19 digits, allowing single spaces or
// dashes between groups, the way card numbers are usually typed.
var panCandidate = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)

// MaskPANs replaces card numbers in text with a masked form keeping the last
// four digits. Only runs that pass the Luhn check are treated as PANs, so
// order numbers and phone numbers pass through untouched.
func MaskPANs(text string) string {
	return panCandidate.ReplaceAllStringFunc(text, func(match string) string {
		digits := stripSeparators(match)
		if len(digits) < 13 || len(digits) > 19 {
			return match
		}
		if !luhnValid(digits) {
			return match
		}
		return "**** **** **** " + digits[len(digits)-4:]
	})
}

// ContainsPAN reports whether text holds at least one Luhn-valid card number.
func ContainsPAN(text string) bool {
	found := false
	for _, match := range panCandidate.FindAllString(text, -1) {
		digits := stripSeparators(match)
		if len(digits) >= 13 && len(digits) <= 19 && luhnValid(digits) {
			found = true
			break
		}
	}
	return found
}

func stripSeparators(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// luhnValid implements the standard mod-10 checksum over an all-digit string.
func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
