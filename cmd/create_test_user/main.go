package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"lifescore_backend/internal/db"
	"lifescore_backend/internal/service"
	"lifescore_backend/internal/storage"
	"lifescore_backend/internal/storage/memory"
	"lifescore_backend/internal/storage/postgres"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	userID := flag.String("user", "", "user id (a new uuid when empty)")
	coins := flag.Int64("coins", 100, "starting coins for a new account")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	if *userID == "" {
		*userID = uuid.NewString()
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-insecure-secret"
	}
	if err := service.InitJWT(secret); err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatal(err)
	}

	var durable storage.Backend
	if pool != nil {
		defer pool.Close()
		durable = postgres.New(pool)
	} else {
		log.Println("DATABASE_URL not set; account lives in memory only")
	}

	ledger := service.NewLedgerService(storage.NewResilient(durable, memory.New()), service.WithInitialCoins(*coins))
	u, err := ledger.Account(ctx, *userID)
	if err != nil {
		log.Fatalf("ensure account: %v", err)
	}
	log.Printf("user id=%s coins=%d lifescore=%d level=%d\n", u.ID, u.Coins, u.LifeScore, u.Level)

	token, err := service.GenerateJWT(u.ID, *ttl)
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}
	log.Printf("token=%s\n", token)
}
