package main

import (
	"fmt"
	"log"
	"os"

	"multi-org-integration-platform/internal/config"
	"multi-org-integration-platform/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/migrate/main.go [up|down|status]")
		os.Exit(1)
	}

	command := os.Args[1]

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	db, err := database.NewConnection(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	migrator := database.NewMigrator(db)

	switch command {
	case "up":
		fmt.Println("Running migrations...")
		if err := migrator.Up(); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		fmt.Println("Migrations completed successfully")

	case "down":
		fmt.Println("Rolling back migrations...")
		if err := migrator.Down(); err != nil {
			log.Fatalf("Failed to rollback migrations: %v", err)
		}
		fmt.Println("Migrations rolled back successfully")

	case "status":
		statuses, err := migrator.Status()
		if err != nil {
			log.Fatalf("Failed to read migration status: %v", err)
		}

		missing := 0
		for _, status := range statuses {
			state := "present"
			if !status.Exists {
				state = "missing"
				missing++
			}
			fmt.Printf("  %-20s %s\n", status.Table, state)
		}

		if missing > 0 {
			fmt.Printf("%d table(s) missing - run migrations\n", missing)
		} else {
			fmt.Println("Database appears to be properly migrated")
		}

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println("Available commands: up, down, status")
		os.Exit(1)
	}
}
