package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
)

type contact struct {
	ID       string `json:"-"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Channel  string `json:"channel"`
	Address  string `json:"address"`
}

type entity struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Age        int      `json:"age"`
	ContactIDs []string `json:"contact_ids"`
}

type coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type zone struct {
	Label  string     `json:"label"`
	Shape  string     `json:"shape"`
	Center coordinate `json:"center"`
	Radius float64    `json:"radius_m"`
}

type sample struct {
	EntityID   string     `json:"entity_id"`
	Timestamp  time.Time  `json:"timestamp"`
	Location   coordinate `json:"location"`
	BatteryPct int        `json:"battery_pct"`
	Online     bool       `json:"online"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file, using system environment variables")
	}

	client := resty.New().
		SetBaseURL(seedGetEnv("ENGINE_URL", "http://localhost:8001")).
		SetTimeout(10 * time.Second)

	fmt.Println("Checking safety engine...")
	resp, err := client.R().Get("/healthz")
	if err != nil || resp.IsError() {
		log.Fatalf("Engine not reachable: %v\n\nStart it with:\n  go run ./cmd/safety-engine", err)
	}
	fmt.Println("✓ Engine is up")

	step1_contacts(client)
	step2_entities(client)
	step3_zones(client)
	step4_telemetry(client)
	step5_verify(client)

	fmt.Println("\n✅ Demo data seeded successfully")
	fmt.Println("   Watch live events: ws://localhost:8001/v1/stream")
}

var home = coordinate{Lat: -26.2041, Lng: 28.0473}

func step1_contacts(client *resty.Client) {
	fmt.Println("\n── Step 1: Contacts ────────────────────────────")

	contacts := []contact{
		{ID: "police", Name: "Local Police", Priority: 1, Channel: "voice", Address: "+27-10-201-0000"},
		{ID: "mom", Name: "Sarah Johnson", Priority: 2, Channel: "message", Address: "+27-82-123-4567"},
		{ID: "dad", Name: "Mike Smith", Priority: 2, Channel: "voice", Address: "+27-83-987-6543"},
	}
	for _, c := range contacts {
		mustOK(client.R().SetBody(c).Put("/v1/contacts/" + c.ID))
		fmt.Printf("  ✓ %-8s → %s (%s)\n", c.ID, c.Name, c.Channel)
	}
}

func step2_entities(client *resty.Client) {
	fmt.Println("\n── Step 2: Entities ────────────────────────────")

	entities := []entity{
		{ID: "lerato", Name: "Lerato", Age: 9, ContactIDs: []string{"mom", "dad", "police"}},
		{ID: "thabo", Name: "Thabo", Age: 11, ContactIDs: []string{"mom", "dad"}},
	}
	for _, e := range entities {
		resp, err := client.R().SetBody(e).Post("/v1/entities")
		if err == nil && resp.StatusCode() == 409 {
			fmt.Printf("  • %-8s already enrolled\n", e.ID)
			continue
		}
		mustOK(resp, err)
		fmt.Printf("  ✓ %-8s enrolled with %d contacts\n", e.ID, len(e.ContactIDs))
	}
}

func step3_zones(client *resty.Client) {
	fmt.Println("\n── Step 3: Geofences ───────────────────────────")

	zones := []zone{{Label: "home", Shape: "circle", Center: home, Radius: 300}}
	mustOK(client.R().SetBody(zones).Put("/v1/entities/lerato/zones"))
	fmt.Println("  ✓ lerato → home (300 m)")
}

func step4_telemetry(client *resty.Client) {
	fmt.Println("\n── Step 4: Telemetry ───────────────────────────")

	now := time.Now().UTC().Truncate(time.Second)
	samples := []sample{
		{EntityID: "lerato", Timestamp: now.Add(-2 * time.Minute), Location: home, BatteryPct: 82, Online: true},
		{EntityID: "lerato", Timestamp: now.Add(-time.Minute), Location: home, BatteryPct: 81, Online: true},
		{EntityID: "thabo", Timestamp: now.Add(-time.Minute), Location: coordinate{Lat: -26.19, Lng: 28.03}, BatteryPct: 12, Online: true},
	}
	for _, s := range samples {
		var res struct {
			Status string `json:"status"`
		}
		resp, err := client.R().SetBody(s).SetResult(&res).Post("/v1/telemetry")
		if err == nil && resp.StatusCode() == 409 {
			fmt.Printf("  • %-8s sample already stored\n", s.EntityID)
			continue
		}
		mustOK(resp, err)
		fmt.Printf("  ✓ %-8s battery %3d%% → %s\n", s.EntityID, s.BatteryPct, res.Status)
	}
}

func step5_verify(client *resty.Client) {
	fmt.Println("\n── Step 5: Verification ────────────────────────")

	var entities []entity
	mustOK(client.R().SetResult(&entities).Get("/v1/entities"))
	fmt.Printf("  ✓ %d entities enrolled\n", len(entities))

	var alerts []map[string]any
	mustOK(client.R().SetResult(&alerts).Get("/v1/entities/thabo/alerts"))
	fmt.Printf("  ✓ spot check: thabo has %d open alert(s)\n", len(alerts))
}

func mustOK(resp *resty.Response, err error) {
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	if resp.IsError() {
		log.Fatalf("%s %s → %d: %s", resp.Request.Method, resp.Request.URL, resp.StatusCode(), resp.String())
	}
}

func seedGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
