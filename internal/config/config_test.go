package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidecisionlog/server/internal/config"
)

// isolate points .env at a missing file so the developer's own .env never
// leaks into a test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("DECISIONLOG_DOTENV", filepath.Join(t.TempDir(), "missing.env"))
	for _, k := range []string{
		"DECISIONLOG_CONFIG_FILE", "DECISIONLOG_HTTP_ADDR", "DECISIONLOG_ENV",
		"DECISIONLOG_PROVIDER_URL", "DECISIONLOG_CONTRACT_ADDRESS", "DECISIONLOG_PRIVATE_KEY",
		"DECISIONLOG_ACCOUNT_ADDRESS", "DECISIONLOG_GAS_LIMIT", "DECISIONLOG_SUBMIT_RPS",
		"DECISIONLOG_RECEIPT_TIMEOUT_SECONDS", "DECISIONLOG_DB_PATH",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, uint64(2_000_000), cfg.GasLimit)
	assert.Equal(t, "50000000000", cfg.GasPriceWei().String())
	assert.Equal(t, 120*time.Second, cfg.ReceiptTimeout)
	assert.Equal(t, time.Second, cfg.ReceiptPoll)
	assert.Equal(t, 64, cfg.SubmitQueue)
	assert.Zero(t, cfg.SubmitRPS)
	assert.Empty(t, cfg.DBPath)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("DECISIONLOG_HTTP_ADDR", ":9999")
	t.Setenv("DECISIONLOG_ENV", "PROD")
	t.Setenv("DECISIONLOG_GAS_LIMIT", "300000")
	t.Setenv("DECISIONLOG_RECEIPT_TIMEOUT_SECONDS", "5")
	t.Setenv("DECISIONLOG_SUBMIT_RPS", "0.5")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, uint64(300000), cfg.GasLimit)
	assert.Equal(t, 5*time.Second, cfg.ReceiptTimeout)
	assert.Equal(t, 0.5, cfg.SubmitRPS)
}

func TestLoad_FailSoftValues(t *testing.T) {
	isolate(t)
	t.Setenv("DECISIONLOG_ENV", "staging")
	t.Setenv("DECISIONLOG_GAS_LIMIT", "lots")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, uint64(2_000_000), cfg.GasLimit)
}

func TestLoad_DotEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DECISIONLOG_PROVIDER_URL=http://127.0.0.1:8545\n"), 0o600))
	t.Setenv("DECISIONLOG_DOTENV", path)
	// godotenv.Load sets the variable for the process; restore it afterwards.
	t.Cleanup(func() { os.Unsetenv("DECISIONLOG_PROVIDER_URL") })
	os.Unsetenv("DECISIONLOG_PROVIDER_URL")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8545", cfg.ProviderURL)
}

func TestLoad_YAMLFileUnderEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "decisionlog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":7000"
grpc_addr: ""
gas_price_gwei: 20
contract_address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
`), 0o600))
	t.Setenv("DECISIONLOG_CONFIG_FILE", path)
	t.Setenv("DECISIONLOG_HTTP_ADDR", ":7001")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, ":7001", cfg.HTTPAddr)
	assert.Empty(t, cfg.GRPCAddr)
	assert.Equal(t, uint64(20), cfg.GasPriceGwei)
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", cfg.ContractAddress)
}

func TestLoad_BadYAML(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_addr: [unterminated"), 0o600))
	t.Setenv("DECISIONLOG_CONFIG_FILE", path)

	_, err := config.Load()
	assert.Error(t, err)
}

func TestValidateLedger(t *testing.T) {
	isolate(t)
	cfg, err := config.Load()
	require.NoError(t, err)

	err = cfg.ValidateLedger()
	require.ErrorIs(t, err, config.ErrLedgerConfig)
	assert.Contains(t, err.Error(), "DECISIONLOG_PROVIDER_URL")
	assert.Contains(t, err.Error(), "DECISIONLOG_CONTRACT_ADDRESS")
	assert.Contains(t, err.Error(), "DECISIONLOG_PRIVATE_KEY")

	cfg.ProviderURL = "http://127.0.0.1:8545"
	cfg.ContractAddress = "0xnothex"
	cfg.PrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	err = cfg.ValidateLedger()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a hex address")

	cfg.ContractAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	assert.NoError(t, cfg.ValidateLedger())
}
