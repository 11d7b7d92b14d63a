package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/crypto/acme/autocert"

	"orrery.space/shared/celestial"
)

// isValidSubdomain reports whether a certificate may be issued for host:
// the apex, www, or a planet subdomain of the configured domain.
func isValidSubdomain(table *celestial.Table, domain, host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	domain = strings.ToLower(domain)

	if host == domain || host == "www."+domain {
		return true
	}

	return table.PlanetForHost(host, domain) != ""
}

func newCertManager(table *celestial.Table, domain, certDir string) *autocert.Manager {
	if err := os.MkdirAll(certDir, 0700); err != nil {
		log.Printf("Warning: Failed to create %s directory: %v", certDir, err)
	}

	return &autocert.Manager{
		Cache:  autocert.DirCache(certDir),
		Prompt: autocert.AcceptTOS,
		HostPolicy: func(ctx context.Context, host string) error {
			if isValidSubdomain(table, domain, host) {
				log.Printf("Accepting certificate request for: %s", host)
				return nil
			}
			log.Printf("Rejecting certificate request for invalid host: %s", host)
			return fmt.Errorf("host %s not configured", host)
		},
	}
}

func setupTLS(manager *autocert.Manager) *tls.Config {
	return &tls.Config{
		GetCertificate: manager.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1", "acme-tls/1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}
}
