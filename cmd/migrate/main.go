package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"careportal/internal/config"
	"careportal/pkg/database"
)

const usage = `
Care Portal - Database CLI Tool

Usage:
  migrate [command]

Commands:
  up          Run schema migrations
  status      Show database connection status
  seed-dev    Seed with development/test data (admin, doctor, assigned patient)

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go seed-dev
`

func main() {
	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	switch flag.Arg(0) {
	case "up":
		if err := database.Migrate(db); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed")
	case "status":
		if err := database.Ping(db); err != nil {
			log.Fatalf("Database connection failed: %v", err)
		}
		log.Println("Database connection: OK")
	case "seed-dev":
		if err := database.Migrate(db); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		result, err := database.SeedDevelopment(db)
		if err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
		log.Printf("Admin:   %s", result.Admin.Email)
		log.Printf("Doctor:  %s", result.Doctor.Email)
		log.Printf("Patient: %s (assigned to %s)", result.Patient.Email, result.Doctor.DisplayName)
	default:
		fmt.Printf("Unknown command: %s\n", flag.Arg(0))
		flag.Usage()
		os.Exit(1)
	}
}
