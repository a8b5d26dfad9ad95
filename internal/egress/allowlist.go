package egress

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// ErrBlocked is returned for requests outside the configured egress policy.
var ErrBlocked = errors.New("egress blocked")

// AllowlistRoundTripper enforces HTTPS-only requests to a fixed host allowlist.
type AllowlistRoundTripper struct {
	Base      http.RoundTripper
	Allowlist map[string]bool
}

// NewAllowlistRoundTripper returns a RoundTripper that enforces a host allowlist.
func NewAllowlistRoundTripper(base http.RoundTripper, hosts []string) *AllowlistRoundTripper {
	allowlist := make(map[string]bool, len(hosts))
	for _, host := range hosts {
		allowlist[strings.ToLower(host)] = true
	}
	return &AllowlistRoundTripper{Base: base, Allowlist: allowlist}
}

func (rt *AllowlistRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL == nil || req.URL.Scheme != "https" {
		return nil, ErrBlocked
	}
	host := req.URL.Hostname()
	if host == "" || net.ParseIP(host) != nil {
		return nil, ErrBlocked
	}
	if !rt.Allowlist[strings.ToLower(host)] {
		return nil, ErrBlocked
	}
	return baseTransport(rt.Base).RoundTrip(req)
}

// SiteRoundTripper pins requests to the scheme and host of one configured
// site. Plain http is only allowed when the site itself is configured that way.
type SiteRoundTripper struct {
	Base   http.RoundTripper
	scheme string
	host   string
}

func NewSiteRoundTripper(base http.RoundTripper, siteURL string) (*SiteRoundTripper, error) {
	parsed, err := url.Parse(strings.TrimSpace(siteURL))
	if err != nil {
		return nil, err
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return nil, ErrBlocked
	}
	if parsed.Host == "" {
		return nil, ErrBlocked
	}
	return &SiteRoundTripper{
		Base:   base,
		scheme: parsed.Scheme,
		host:   strings.ToLower(parsed.Host),
	}, nil
}

func (rt *SiteRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL == nil || req.URL.Scheme != rt.scheme {
		return nil, ErrBlocked
	}
	if strings.ToLower(req.URL.Host) != rt.host {
		return nil, ErrBlocked
	}
	return baseTransport(rt.Base).RoundTrip(req)
}

func baseTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		return http.DefaultTransport
	}
	return base
}
