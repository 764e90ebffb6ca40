package main

import (
	"flag"
	"fmt"
	"os"

	"immich-service/server"

	_ "github.com/mattn/go-sqlite3"
	"github.com/umakantv/go-utils/db/migrations"
)

func main() {
	commandFlag := flag.String("command", "start", "Command to run: start, migrate or create-migration")
	nameFlag := flag.String("name", "", "Migration name (alphanum+underscore only)")
	dirFlag := flag.String("dir", "./database/migrations", "Target directory for the new .sql file")
	flag.Parse()

	if *commandFlag == "" {
		fmt.Println("Usage: go run main.go --command <command-name> [... other options]")
		os.Exit(1)
	}

	switch *commandFlag {
	case "start":
		server.StartServer()
	case "migrate":
		server.Migrate()
	case "create-migration":
		migrations.CreateMigration(nameFlag, dirFlag)
	default:
		fmt.Printf("Unknown command %q (expected start, migrate or create-migration)\n", *commandFlag)
		os.Exit(1)
	}
}
