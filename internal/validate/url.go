package validate

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// URL validation errors.
var (
	ErrInvalidURL       = errors.New("invalid URL format")
	ErrDisallowedScheme = errors.New("URL scheme not allowed")
	ErrSSRFRisk         = errors.New("URL poses SSRF risk")
)

// maxURLLength bounds configured redirect URLs.
const maxURLLength = 2048

// RedirectURL validates a checkout success or cancel URL. Only https
// is accepted, and hosts resolving to private or loopback addresses
// are rejected so a misconfigured deployment cannot bounce users into
// internal infrastructure.
func RedirectURL(urlStr string) (string, error) {
	urlStr = strings.TrimSpace(urlStr)
	if urlStr == "" {
		return "", ErrEmpty
	}
	if len(urlStr) > maxURLLength {
		return "", fmt.Errorf("%w: maximum is %d characters", ErrTooLong, maxURLLength)
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: got %q, want https", ErrDisallowedScheme, parsed.Scheme)
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return "", fmt.Errorf("%w: missing hostname", ErrInvalidURL)
	}
	if err := checkSSRF(hostname); err != nil {
		return "", err
	}

	return urlStr, nil
}

// checkSSRF rejects hostnames that resolve to private, loopback, or
// link-local addresses.
func checkSSRF(hostname string) error {
	lower := strings.ToLower(hostname)
	if lower == "localhost" || lower == "localhost.localdomain" {
		return fmt.Errorf("%w: localhost not allowed", ErrSSRFRisk)
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		// Unresolvable now is not proof of risk; DNS errors surface
		// elsewhere.
		return nil
	}

	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("%w: private IP address %s", ErrSSRFRisk, ip.String())
		}
	}

	return nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 10:
			return true
		case ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31:
			return true
		case ip4[0] == 192 && ip4[1] == 168:
			return true
		case ip4[0] == 169 && ip4[1] == 254:
			return true
		}
		return false
	}

	// fc00::/7 unique local addresses
	return len(ip) == 16 && (ip[0]&0xfe) == 0xfc
}
