package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk-pipeline/internal/auth"
	"github.com/spec-kit/helpdesk-pipeline/internal/config"
)

func main() {
	operator := pflag.StringP("operator", "o", "", "operator name recorded as the token subject")
	scopes := pflag.StringSliceP("scope", "s", []string{auth.ScopeTicketsRead}, "granted scopes (tickets:read, sync:run)")
	ttl := pflag.Int("ttl", 0, "token lifetime in minutes (defaults to AUTH_ACCESS_TOKEN_TTL_MINUTES)")
	hashSecret := pflag.String("hash-webhook-secret", "", "print the bcrypt hash of a webhook secret and exit")
	pflag.Parse()

	if *hashSecret != "" {
		hashed, err := auth.HashSecret(*hashSecret, bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("hash secret: %v", err)
		}
		fmt.Println(hashed)
		return
	}

	if *operator == "" {
		fmt.Fprintln(os.Stderr, "--operator is required")
		pflag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	minutes := cfg.Auth.AccessTokenTTLMinutes
	if *ttl > 0 {
		minutes = *ttl
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, minutes)
	token, expiresAt, err := tokens.GenerateToken(*operator, *scopes)
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
}
