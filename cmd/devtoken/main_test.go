package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tenderflow-backend/pkg/auth"
	"github.com/angelmondragon/tenderflow-backend/pkg/config"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
)

func devConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: config.AppEnvDev},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "tenderflow", ExpirationMinutes: 10},
	}
}

func TestMintProducesParseableToken(t *testing.T) {
	cfg := devConfig()
	token, userID, err := mint(cfg, "supplier", "", time.Now())
	require.NoError(t, err)

	claims, err := auth.ParseAccessToken(cfg.JWT, token)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, enums.ActorRoleSupplier, claims.Role)
}

func TestMintRefusesProdAndSystemRole(t *testing.T) {
	cfg := devConfig()
	_, _, err := mint(cfg, "system", "", time.Now())
	require.Error(t, err)

	cfg.App.Env = config.AppEnvProd
	_, _, err = mint(cfg, "buyer", "", time.Now())
	require.Error(t, err)
}
