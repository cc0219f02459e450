// Package privacy holds the redaction helpers shared by logging and the
// disclosure projector. Nothing here ever returns more than it was given.
package privacy

import (
	"fmt"
	"net"
	"strings"
	"unicode"
)

// AnonymizeIP truncates an IP address to its /24 (IPv4) or /48 (IPv6) prefix
// before it reaches request logs. Returns "unknown" for empty input and
// "invalid" for unparseable addresses.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "invalid"
	}

	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}

	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::",
		parsed[0], parsed[1],
		parsed[2], parsed[3],
		parsed[4], parsed[5])
}

// maskedDigits is how many trailing digits MaskInstrument keeps visible.
const maskedDigits = 4

// MaskInstrument reduces a payment instrument identifier to its last four
// digits ("•••• 4242"). Inputs with fewer than eight digits are fully masked
// so short references can never be reconstructed from the tail.
func MaskInstrument(instrument string) string {
	var digits []rune
	for _, r := range instrument {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) < 2*maskedDigits {
		return "••••"
	}
	return "•••• " + string(digits[len(digits)-maskedDigits:])
}

// MaskHandle keeps the first character of a social handle and hides the rest.
func MaskHandle(handle string) string {
	h := strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if h == "" {
		return ""
	}
	r := []rune(h)
	return "@" + string(r[0]) + strings.Repeat("•", len(r)-1)
}
