// devtoken mints a signed access token for local testing.
// Usage: go run ./cmd/devtoken -staff s-1 -name "Ada" -role manager
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"sourcedpos/internal/config"
	"sourcedpos/internal/middleware"

	"github.com/golang-jwt/jwt/v5"
)

func main() {
	staff := flag.String("staff", "dev-staff", "staff_id claim")
	name := flag.String("name", "Dev Staff", "display name")
	role := flag.String("role", "owner", "staff | manager | owner")
	caps := flag.String("caps", "", "comma-separated extra capabilities")
	location := flag.Int64("location", 0, "location_id claim (0 = none)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}

	claims := middleware.JWTClaims{
		StaffID: *staff,
		Name:    *name,
		Role:    *role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   *staff,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(cfg.JWTExpirationHours) * time.Hour)),
		},
	}
	if *caps != "" {
		claims.Capabilities = strings.Split(*caps, ",")
	}
	if *location > 0 {
		claims.LocationID = location
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign:", err)
		os.Exit(1)
	}
	fmt.Println(signed)
}
