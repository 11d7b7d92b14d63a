package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/cloudflare/cloudflare-go"

	"orrery.space/shared/celestial"
)

// setup_dns points the orrery's apex, www and planet subdomains at a server.
func main() {
	var (
		apiToken    = flag.String("token", "", "Cloudflare API Token (required)")
		serverIP    = flag.String("ip", "", "Server IPv4 address to point records to (required)")
		zoneName    = flag.String("zone", celestial.DefaultDomain, "Cloudflare Zone Name")
		planetsFile = flag.String("planets", "", "planet table file (.yaml, .yml or .toml); default is the built-in table")
	)
	flag.Parse()

	if *apiToken == "" || *serverIP == "" {
		log.Fatal("Error: Cloudflare API Token (-token) and Server IP Address (-ip) are required.")
	}
	if err := validateIPv4(*serverIP); err != nil {
		log.Fatalf("Error: %v", err)
	}

	table := celestial.MustDefaultTable()
	if *planetsFile != "" {
		t, err := celestial.LoadTable(*planetsFile)
		if err != nil {
			log.Fatalf("Error loading planets: %v", err)
		}
		table = t
	}

	log.Printf("Starting %s DNS setup tool...", *zoneName)
	domains := collectDomains(table)

	api, err := cloudflare.NewWithAPIToken(*apiToken)
	if err != nil {
		log.Fatalf("Error initializing Cloudflare API: %v", err)
	}

	zoneID, err := api.ZoneIDByName(*zoneName)
	if err != nil {
		log.Fatalf("Error finding Cloudflare Zone ID for zone '%s': %v", *zoneName, err)
	}
	log.Printf("Found Zone ID '%s' for zone '%s'", zoneID, *zoneName)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := setupRecords(ctx, api, zoneID, *zoneName, *serverIP, domains)
	log.Printf("DNS setup finished: %d created, %d updated", res.Created, res.Updated)
	if err != nil {
		log.Printf("Some records failed:\n%v", err)
		os.Exit(1)
	}
	log.Println("Certificates are issued on demand by the server's autocert manager.")
}
