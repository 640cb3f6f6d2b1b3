package main

import (
	"database/sql"
	"flag"
	"log"
	"os"

	"github.com/JB-Assistant/oilchange-crm-sub000/internal/store"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	flag.Usage = func() {
		log.Printf("usage: %s [up|down|status]", os.Args[0])
	}
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := store.Migrate(db, command); err != nil {
		log.Fatalf("goose %s: %v", command, err)
	}
}
