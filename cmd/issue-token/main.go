package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/stemsi/quizroom/internal/config"
	"github.com/stemsi/quizroom/internal/service"
	"golang.org/x/term"
)

func main() {
	var (
		playerID string
		role     string
		ttl      time.Duration
	)
	flag.StringVar(&playerID, "player", "", "Player ID to put in the token (required)")
	flag.StringVar(&role, "role", string(service.RolePlayer), "Token role: player or host")
	flag.DurationVar(&ttl, "ttl", 0, "Token lifetime, defaults to JWT_EXPIRY_HOURS")
	flag.Parse()

	if playerID == "" {
		fmt.Fprintln(os.Stderr, "Error: -player is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	if ttl > 0 {
		cfg.JWTExpiry = ttl
	}

	// Prompt for the secret instead of signing with the development default.
	if os.Getenv("JWT_SECRET") == "" {
		secret, err := readSecret()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg.JWTSecret = secret
	}

	token, err := service.NewAuthService(cfg).GenerateToken(playerID, service.Role(role))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func readSecret() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("JWT_SECRET is not set and stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, "JWT secret: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}

	secret := strings.TrimSpace(string(raw))
	if secret == "" {
		return "", fmt.Errorf("secret must not be empty")
	}
	return secret, nil
}
