package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-fi/mvm/internal/registry"
	"github.com/meridian-fi/mvm/internal/strategy"
	"github.com/meridian-fi/mvm/internal/token"
	"github.com/meridian-fi/mvm/internal/types"
	"github.com/meridian-fi/mvm/internal/vault"
)

func newTestServer(t *testing.T) *WebServer {
	t.Helper()

	bank := token.NewInMemoryBank()
	staking := strategy.NewSimulated("atom-staking", "uatom", bank, 0)

	assets := []types.Asset{
		{Denom: "uatom", Strategies: []types.Strategy{
			{ID: "atom-staking", Name: "Atom Staking"},
		}},
	}
	reg, err := registry.New(assets, map[string]strategy.Strategy{
		"atom-staking": staking,
	})
	require.NoError(t, err)

	service, err := vault.New(vault.Config{
		Registry:     reg,
		Bank:         bank,
		Dex:          strategy.NewFixedRateDex(bank, nil),
		Authorizer:   vault.NewAllowList([]string{"manager"}, nil),
		VaultAddress: "vault",
		FeeCollector: "collector",
		ShareDenom:   "mvshare",
	})
	require.NoError(t, err)

	return NewWebServer("0", service)
}

func TestHealthWithoutDatabaseIsHealthy(t *testing.T) {
	ws := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	ws.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "OK", body["status"])

	vaultStatus, ok := body["vault_status"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "disabled", vaultStatus["persistence"])
	assert.Equal(t, true, vaultStatus["database_healthy"])
}

func TestHealthReportsShareSupply(t *testing.T) {
	ws := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	ws.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	vaultStatus, ok := body["vault_status"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "0", vaultStatus["share_supply"])
}
