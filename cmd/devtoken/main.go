// Command devtoken prints a signed access token for exercising the API
// locally. It refuses to run against a prod config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/tenderflow-backend/pkg/auth"
	"github.com/angelmondragon/tenderflow-backend/pkg/config"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "devtoken"})
	_ = godotenv.Load()

	role := flag.String("role", "buyer", "actor role: buyer|supplier")
	user := flag.String("user", "", "user id (random when empty)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	token, userID, err := mint(cfg, *role, *user, time.Now())
	if err != nil {
		logg.Error(logg.WithField(context.Background(), "role", *role), "failed to mint token", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "user_id=%s role=%s\n", userID, *role)
	fmt.Println(token)
}

func mint(cfg *config.Config, rawRole, rawUser string, now time.Time) (string, uuid.UUID, error) {
	if cfg.App.IsProd() {
		return "", uuid.Nil, errors.New("devtoken is disabled in prod")
	}
	role, err := enums.ParseActorRole(rawRole)
	if err != nil {
		return "", uuid.Nil, err
	}
	userID := uuid.New()
	if rawUser != "" {
		if userID, err = uuid.Parse(rawUser); err != nil {
			return "", uuid.Nil, fmt.Errorf("invalid -user: %w", err)
		}
	}
	token, err := auth.MintAccessToken(cfg.JWT, now, auth.AccessTokenPayload{UserID: userID, Role: role})
	return token, userID, err
}
