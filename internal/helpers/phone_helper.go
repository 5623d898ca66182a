package helpers

import (
	"fmt"
	"strings"
)

// NormalizePhoneNumber converts Kenyan subscriber numbers into the 2547XXXXXXXX
// form the payment gateway expects. Accepted inputs: "+2547...", "2547...",
// "07..." and "011..." variants.
func NormalizePhoneNumber(phone string) (string, error) {
	p := strings.TrimSpace(phone)
	p = strings.ReplaceAll(p, " ", "")
	p = strings.TrimPrefix(p, "+")

	if strings.HasPrefix(p, "0") {
		p = "254" + p[1:]
	}

	if len(p) != 12 || !strings.HasPrefix(p, "254") {
		return "", fmt.Errorf("invalid phone number: %q", phone)
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid phone number: %q", phone)
		}
	}
	return p, nil
}
