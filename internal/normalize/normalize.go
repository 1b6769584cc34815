package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrInvalidURL = errors.New("invalid URL format")

// urlPattern accepts http/https URLs whose host is a dotted hostname with a
// top-level label of at least two characters, "localhost", or a dotted-quad
// IPv4 address, optionally followed by a port and a path or query.
var urlPattern = regexp.MustCompile(`(?i)^https?://` +
	`(?:` +
	`(?:[A-Z0-9](?:[A-Z0-9-]{0,61}[A-Z0-9])?\.)+[A-Z]{2,}\.?` + // domain
	`|localhost` +
	`|\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}` + // IPv4
	`)` +
	`(?::\d+)?` + // optional port
	`(?:/?|[/?]\S+)$`)

// Normalize canonicalizes a raw URL for storage. A missing scheme gets
// "http://" prepended. The normalized form is also what resolution
// re-validates before a stored URL is handed back as a redirect target.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty URL", ErrInvalidURL)
	}

	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "http://" + raw
	}

	if !urlPattern.MatchString(raw) {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}

	return raw, nil
}

// Valid reports whether a stored URL still passes validation.
func Valid(stored string) bool {
	_, err := Normalize(stored)
	return err == nil
}
