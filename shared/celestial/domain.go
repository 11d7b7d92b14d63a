package celestial

import (
	"fmt"
	"strings"
)

// DefaultDomain is the apex domain planet subdomains hang off.
const DefaultDomain = "orrery.space"

// FormatDomainName turns a planet identifier into a DNS label: lowercase,
// spaces replaced by hyphens.
func FormatDomainName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
}

// FormatFullDomain returns the planet's subdomain under domain.
func FormatFullDomain(name, domain string) string {
	return fmt.Sprintf("%s.%s", FormatDomainName(name), domain)
}

// Subdomains returns one DNS label per planet in the table, in table order.
func (t *Table) Subdomains() []string {
	labels := make([]string, 0, len(t.records))
	for _, r := range t.records {
		labels = append(labels, FormatDomainName(r.Name))
	}
	return labels
}

// PlanetForHost resolves a host such as "mars.orrery.space" or
// "mars.orrery.space:8443" to a planet identifier. It returns "" when host is
// not a direct subdomain of domain or names no planet.
func (t *Table) PlanetForHost(host, domain string) string {
	// Remove port if present
	if idx := strings.Index(host, ":"); idx > 0 {
		host = host[:idx]
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	suffix := "." + strings.ToLower(domain)
	if !strings.HasSuffix(host, suffix) {
		return ""
	}
	label := strings.TrimSuffix(host, suffix)
	if label == "" || strings.Contains(label, ".") {
		return ""
	}
	for _, r := range t.records {
		if FormatDomainName(r.Name) == label {
			return r.Name
		}
	}
	return ""
}
