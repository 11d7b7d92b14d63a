package main

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// SecurityValidator decides which upstream chat endpoints the relay may
// contact.
type SecurityValidator struct {
	allowedSchemes map[string]bool // schemes permitted for any host
	allowedHosts   map[string]bool // explicit host allow-list; empty allows any
}

// NewSecurityValidator accepts https endpoints on the listed hosts (and
// their subdomains). Plain http is only accepted for loopback hosts.
func NewSecurityValidator(hosts []string) *SecurityValidator {
	allowedHostsMap := make(map[string]bool)
	for _, host := range hosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host != "" {
			allowedHostsMap[host] = true
		}
	}

	return &SecurityValidator{
		allowedSchemes: map[string]bool{
			"https": true,
		},
		allowedHosts: allowedHostsMap,
	}
}

// ValidateChatEndpoint checks the base URL of an OpenAI-compatible API and
// returns it without a trailing slash.
func (s *SecurityValidator) ValidateChatEndpoint(base string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", fmt.Errorf("chat endpoint cannot be empty")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid chat endpoint: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("chat endpoint %q has no host", base)
	}

	scheme := strings.ToLower(u.Scheme)
	if !s.allowedSchemes[scheme] && !(scheme == "http" && isLoopback(u.Hostname())) {
		return "", fmt.Errorf("URL scheme '%s' is not allowed", u.Scheme)
	}
	if u.User != nil {
		return "", fmt.Errorf("chat endpoint must not carry credentials")
	}

	if !s.IsAllowedHost(u.Hostname()) {
		return "", fmt.Errorf("chat host '%s' is not allowed", u.Hostname())
	}

	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), nil
}

// IsAllowedHost checks if the host (or its parent domain) is in the allowed
// list. With no list configured every host is allowed.
func (s *SecurityValidator) IsAllowedHost(host string) bool {
	if host == "" {
		return false
	}
	if len(s.allowedHosts) == 0 {
		return true
	}
	lowerHost := strings.ToLower(host)

	if s.allowedHosts[lowerHost] {
		return true
	}

	for allowed := range s.allowedHosts {
		if strings.HasSuffix(lowerHost, "."+allowed) {
			return true
		}
	}

	return false
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
