// Package validation checks API base URLs before any request is sent.
//
// Private, loopback and link-local destinations are refused unless
// explicitly allowed (APICONN_ALLOW_PRIVATE or SetAllowPrivate). Cloud
// metadata endpoints are refused in every mode.
package validation

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// EnvAllowPrivate toggles private destinations at process start.
const EnvAllowPrivate = "APICONN_ALLOW_PRIVATE"

const lookupTimeout = 5 * time.Second

var allowPrivate atomic.Bool

var privateNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10",
	"169.254.0.0/16",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"240.0.0.0/4",
	"fc00::/7",
	"fe80::/10",
	"ff00::/8",
	"::1/128",
	"::/128",
	"100::/64",
	"2001:db8::/32",
)

var metadataHosts = map[string]struct{}{
	"169.254.169.254":          {},
	"metadata.google.internal": {},
	"metadata":                 {},
	"instance-data":            {},
	"fd00:ec2::254":            {},
}

// lookupIP resolves host names; replaced in tests.
var lookupIP = func(ctx context.Context, host string) ([]net.IP, error) {
	return net.DefaultResolver.LookupIP(ctx, "ip", host)
}

func init() {
	v, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(EnvAllowPrivate)))
	allowPrivate.Store(v)
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("validation: bad CIDR %q: %v", cidr, err))
		}
		out = append(out, network)
	}
	return out
}

// SetAllowPrivate enables or disables private and localhost destinations.
func SetAllowPrivate(enabled bool) {
	allowPrivate.Store(enabled)
}

// AllowPrivateEnabled reports whether private destinations are allowed.
func AllowPrivateEnabled() bool {
	return allowPrivate.Load()
}

// ValidateBaseURL checks that rawURL is an http(s) URL with a host that is
// safe to send credentials to.
func ValidateBaseURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: only http and https are allowed, got %q", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("URL must contain a hostname")
	}
	if isCloudMetadata(host) {
		return fmt.Errorf("cloud metadata endpoints are not allowed")
	}
	if !allowPrivate.Load() && isLocalhost(host) {
		return fmt.Errorf("localhost URLs are not allowed")
	}

	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip)
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	ips, err := lookupIP(ctx, host)
	if err != nil {
		// Unresolvable hosts fail later at dial time.
		return nil
	}
	for _, ip := range ips {
		if err := checkIP(ip); err != nil {
			return fmt.Errorf("domain %q resolves to forbidden IP %s: %w", host, ip, err)
		}
	}
	return nil
}

func isLocalhost(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1", "0.0.0.0", "::":
		return true
	}
	return strings.HasSuffix(host, ".localhost")
}

func isCloudMetadata(host string) bool {
	if _, ok := metadataHosts[host]; ok {
		return true
	}
	return strings.HasSuffix(host, ".metadata.google.internal")
}

func checkIP(ip net.IP) error {
	if isCloudMetadata(ip.String()) {
		return fmt.Errorf("cloud metadata IP address is not allowed")
	}
	if ip.IsUnspecified() {
		return fmt.Errorf("unspecified IP addresses are not allowed")
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return fmt.Errorf("link-local IP addresses are not allowed")
	}
	if allowPrivate.Load() {
		return nil
	}
	if ip.IsLoopback() {
		return fmt.Errorf("loopback IP addresses are not allowed")
	}
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return fmt.Errorf("private IP addresses are not allowed")
		}
	}
	return nil
}
