package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/soko/soko-api/internal/config"
	"github.com/soko/soko-api/internal/pkg/jwt"
)

// Mints an access token for local testing:
//
//	go run ./cmd/devtoken -user <uuid> -role member
func main() {
	userFlag := flag.String("user", "", "user id (random if empty)")
	roleFlag := flag.String("role", "member", "role claim (member or admin)")
	flag.Parse()

	cfg := config.Load()
	if cfg.IsProduction() {
		log.Fatal("refusing to mint dev tokens in production")
	}

	userID := uuid.New()
	if *userFlag != "" {
		var err error
		userID, err = uuid.Parse(*userFlag)
		if err != nil {
			log.Fatalf("invalid user id: %v", err)
		}
	}

	svc := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)
	token, err := svc.GenerateAccessToken(userID, *roleFlag)
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}

	fmt.Printf("user:  %s\nrole:  %s\nttl:   %s\ntoken: %s\n",
		userID, *roleFlag, cfg.JWTAccessTTL, token)
}
