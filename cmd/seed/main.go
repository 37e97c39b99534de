// Command seed populates the stream_codes table with demo data.
package main

import (
	"context"
	"flag"
	"log"

	"streamcode/internal/config"
	"streamcode/internal/database"
	"streamcode/internal/seed"
)

func main() {
	// Parse command line flags
	numSingles := flag.Int("singles", 20, "Number of single-stream codes to issue")
	numMulti := flag.Int("multi", 5, "Number of multi-stream codes to issue")
	numDead := flag.Int("dead", 5, "Number of expired or deactivated records to store")
	fixtures := flag.Bool("fixtures", true, "Issue the built-in showcase fixtures")
	shouldClean := flag.Bool("clean", false, "Delete all stream codes before seeding")
	seedValue := flag.Int64("seed", 0, "Random seed for generated data (0 = time based)")
	flag.Parse()

	log.Println("Stream code seeder")
	log.Printf("Target: %d singles, %d multi, %d dead, fixtures=%v, clean=%v\n", *numSingles, *numMulti, *numDead, *fixtures, *shouldClean)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close() }()

	summary, err := seed.Seed(context.Background(), db, seed.Options{
		NumSingles:   *numSingles,
		NumMulti:     *numMulti,
		NumDead:      *numDead,
		WithFixtures: *fixtures,
		ShouldClean:  *shouldClean,
		Seed:         *seedValue,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	for _, code := range summary.FixtureCodes {
		log.Printf("fixture: %s/preview?code=%s", cfg.PublicBaseURL, code)
	}
	log.Printf("Done: %d fixture, %d live, %d dead codes", len(summary.FixtureCodes), len(summary.LiveCodes), len(summary.DeadCodes))
}
