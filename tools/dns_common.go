package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"

	"github.com/cloudflare/cloudflare-go"

	"orrery.space/shared/celestial"
)

// dnsAPI is the part of the Cloudflare client the setup needs.
type dnsAPI interface {
	ListDNSRecords(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.ListDNSRecordsParams) ([]cloudflare.DNSRecord, *cloudflare.ResultInfo, error)
	CreateDNSRecord(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.CreateDNSRecordParams) (cloudflare.DNSRecord, error)
	UpdateDNSRecord(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.UpdateDNSRecordParams) (cloudflare.DNSRecord, error)
}

// collectDomains lists the record names the orrery needs: the apex, www and
// one subdomain per body in the table. All names are lowercase.
func collectDomains(table *celestial.Table) []string {
	domains := []string{"@", "www"}

	log.Println("Processing planets...")
	for _, sub := range table.Subdomains() {
		if sub == "www" {
			log.Printf("WARNING: Body %q collides with the www record; skipping", sub)
			continue
		}
		if strings.Contains(sub, "_") {
			log.Printf("WARNING: Domain %s contains underscores which may cause DNS issues. Consider using hyphens instead.", sub)
		}
		domains = append(domains, sub)
	}

	log.Printf("Collected %d domains/subdomains.", len(domains))
	return domains
}

// isProxied reports whether Cloudflare should proxy the record. Only the apex
// and www are proxied; planet subdomains stay DNS-only so the server can
// answer ACME challenges and hold websocket streams open.
func isProxied(domain string) bool {
	return domain == "@" || domain == "www"
}

func fullDomainName(domain, zone string) string {
	if domain == "@" {
		return zone
	}
	return domain + "." + zone
}

type dnsResult struct {
	Created int
	Updated int
}

// setupRecords points an A record for every domain at ip, updating records
// that exist and creating the rest. It keeps going past individual failures
// and returns them joined.
func setupRecords(ctx context.Context, api dnsAPI, zoneID, zone, ip string, domains []string) (dnsResult, error) {
	var (
		res  dnsResult
		errs []error
	)
	rc := cloudflare.ZoneIdentifier(zoneID)

	for i, domain := range domains {
		full := fullDomainName(domain, zone)
		proxied := isProxied(domain)
		log.Printf("[%d/%d] Processing DNS for: %s (proxied: %v)", i+1, len(domains), full, proxied)

		records, _, err := api.ListDNSRecords(ctx, rc, cloudflare.ListDNSRecordsParams{
			Type: "A",
			Name: full,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("list %s: %w", full, err))
			continue
		}

		if len(records) == 0 {
			_, err := api.CreateDNSRecord(ctx, rc, cloudflare.CreateDNSRecordParams{
				Type:    "A",
				Name:    domain,
				Content: ip,
				Proxied: cloudflare.BoolPtr(proxied),
				TTL:     1, // automatic
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("create %s: %w", full, err))
				continue
			}
			log.Printf(" -> Successfully created record: %s", full)
			res.Created++
			continue
		}

		for _, existing := range records {
			_, err := api.UpdateDNSRecord(ctx, rc, cloudflare.UpdateDNSRecordParams{
				ID:      existing.ID,
				Type:    "A",
				Name:    domain,
				Content: ip,
				Proxied: cloudflare.BoolPtr(proxied),
				TTL:     1,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("update %s (ID: %s): %w", full, existing.ID, err))
				continue
			}
			log.Printf(" -> Successfully updated record: %s", full)
			res.Updated++
		}
	}

	return res, errors.Join(errs...)
}

// validateIPv4 checks the target of the A records.
func validateIPv4(ip string) error {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil {
		return fmt.Errorf("%q is not an IPv4 address", ip)
	}
	return nil
}
