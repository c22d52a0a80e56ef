package email

import "strings"

// Redact masks an email address for log output, keeping the first character
// of the local part and the full domain: "a***@example.com". Destinations
// are personal data and never appear whole in logs.
func Redact(address string) string {
	at := strings.LastIndex(address, "@")
	if at <= 0 {
		return "***"
	}
	return address[:1] + "***" + address[at:]
}
