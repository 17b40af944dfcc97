package security

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// ServiceURLOptions configures chat service URL validation.
type ServiceURLOptions struct {
	// AllowInsecure permits plain ws:// URLs. wss:// is always allowed.
	AllowInsecure bool
	// AllowLocalNetworks permits loopback/private/link-local IP targets and localhost hostnames.
	AllowLocalNetworks bool
}

// ValidateServiceURL checks that a URL names a websocket endpoint the client
// may connect to. It rejects other schemes and local-network targets unless
// explicitly allowed.
func ValidateServiceURL(rawURL string, opts ServiceURLOptions) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	switch parsed.Scheme {
	case "wss":
	case "ws":
		if !opts.AllowInsecure {
			return fmt.Errorf("ws scheme is not allowed, use wss")
		}
	default:
		return fmt.Errorf("unsupported URL scheme %q, expected ws or wss", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("URL host is required")
	}

	if !opts.AllowLocalNetworks {
		if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
			return fmt.Errorf("local hostname %q is not allowed", host)
		}
	}

	// IP literals are checked without DNS lookups.
	if addr, err := netip.ParseAddr(host); err == nil {
		if addr.Zone() != "" && !opts.AllowLocalNetworks {
			return fmt.Errorf("zoned IP address %q is not allowed", host)
		}
		addr = addr.Unmap()

		if addr.IsUnspecified() || addr.IsMulticast() {
			return fmt.Errorf("disallowed IP address %q", host)
		}

		if !opts.AllowLocalNetworks {
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
				return fmt.Errorf("local network IP %q is not allowed", host)
			}
		}
	}

	return nil
}
