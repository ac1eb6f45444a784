package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"lifescore_backend/internal/db"
	"lifescore_backend/internal/migrations"
	"lifescore_backend/internal/repository"
	"lifescore_backend/internal/storage/postgres"

	"github.com/joho/godotenv"
)

func main() {
	apply := flag.Bool("apply", false, "apply migrations")
	seed := flag.Bool("seed", false, "insert the built-in mission and reward catalog")
	flag.Parse()

	if !*apply && !*seed {
		names, err := migrations.Names()
		if err != nil {
			log.Fatalf("list migrations: %v", err)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	if *apply {
		err := migrations.Apply(ctx, pool, func(name string) {
			fmt.Printf("applied %s\n", name)
		})
		if err != nil {
			log.Fatal(err)
		}
	}

	if *seed {
		n, err := repository.SeedCatalog(ctx, postgres.New(pool))
		if err != nil {
			log.Fatalf("seed catalog: %v", err)
		}
		fmt.Printf("seeded %d catalog rows\n", n)
	}
}
