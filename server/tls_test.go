package main

import (
	"context"
	"crypto/tls"
	"path/filepath"
	"testing"

	"orrery.space/shared/celestial"
)

func TestIsValidSubdomain(t *testing.T) {
	table := celestial.MustDefaultTable()

	tests := []struct {
		host string
		want bool
	}{
		{"orrery.space", true},
		{"www.orrery.space", true},
		{"mars.orrery.space", true},
		{"Neptune.orrery.space", true},
		{"sun.orrery.space.", true},
		{"vulcan.orrery.space", false},
		{"phobos.mars.orrery.space", false},
		{"mars.example.com", false},
		{"example.com", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := isValidSubdomain(table, celestial.DefaultDomain, tt.host); got != tt.want {
			t.Errorf("isValidSubdomain(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestCertManagerHostPolicy(t *testing.T) {
	m := newCertManager(celestial.MustDefaultTable(), celestial.DefaultDomain, filepath.Join(t.TempDir(), "certs"))

	if err := m.HostPolicy(context.Background(), "earth.orrery.space"); err != nil {
		t.Errorf("HostPolicy(earth) error = %v", err)
	}
	if err := m.HostPolicy(context.Background(), "pluto.orrery.space"); err == nil {
		t.Error("HostPolicy(pluto) accepted a body that is not in the table")
	}

	cfg := setupTLS(m)
	if cfg.MinVersion != tls.VersionTLS12 || cfg.GetCertificate == nil {
		t.Errorf("tls config = %+v", cfg)
	}
}
