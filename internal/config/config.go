package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrLedgerConfig = errors.New("ledger configuration incomplete")

type Config struct {
	HTTPAddr string
	GRPCAddr string // "" disables the gRPC health server

	Env    string // "dev" | "prod"
	DBPath string // "" keeps the submission journal in memory

	// Ledger
	ProviderURL     string
	ContractAddress string
	AccountAddress  string // optional; must match the key when set
	PrivateKey      string
	ABIPath         string // optional override of the embedded ABI

	GasLimit       uint64
	GasPriceGwei   uint64
	ReceiptTimeout time.Duration
	ReceiptPoll    time.Duration

	// Submission queue
	SubmitQueue int
	SubmitRPS   float64 // 0 = unlimited
	SubmitBurst int
}

// fileConfig is the optional YAML file.  Every key mirrors an environment
// variable without the DECISIONLOG_ prefix; the environment wins.
type fileConfig struct {
	HTTPAddr              string  `yaml:"http_addr"`
	GRPCAddr              *string `yaml:"grpc_addr"`
	Env                   string  `yaml:"env"`
	DBPath                string  `yaml:"db_path"`
	ProviderURL           string  `yaml:"provider_url"`
	ContractAddress       string  `yaml:"contract_address"`
	AccountAddress        string  `yaml:"account_address"`
	ABIPath               string  `yaml:"abi_path"`
	GasLimit              uint64  `yaml:"gas_limit"`
	GasPriceGwei          uint64  `yaml:"gas_price_gwei"`
	ReceiptTimeoutSeconds int     `yaml:"receipt_timeout_seconds"`
	ReceiptPollMS         int     `yaml:"receipt_poll_ms"`
	SubmitQueue           int     `yaml:"submit_queue"`
	SubmitRPS             float64 `yaml:"submit_rps"`
	SubmitBurst           int     `yaml:"submit_burst"`
}

func defaults() Config {
	return Config{
		HTTPAddr:       ":8000",
		GRPCAddr:       ":9090",
		Env:            "dev",
		GasLimit:       2_000_000,
		GasPriceGwei:   50,
		ReceiptTimeout: 120 * time.Second,
		ReceiptPoll:    time.Second,
		SubmitQueue:    64,
		SubmitBurst:    1,
	}
}

// Load reads .env (if present), then the optional YAML file named by
// DECISIONLOG_CONFIG_FILE, then the environment.  Only an unreadable or
// malformed YAML file is an error; bad individual values fall back to
// their defaults.
func Load() (Config, error) {
	// Existing environment variables are not overridden by .env.
	_ = godotenv.Load(getenvDefault("DECISIONLOG_DOTENV", ".env"))

	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("DECISIONLOG_CONFIG_FILE")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// FromEnv is Load for callers that prefer defaults over a startup failure.
func FromEnv() Config {
	cfg, err := Load()
	if err != nil {
		cfg = defaults()
		cfg.applyEnv()
	}
	return cfg
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}

	setString(&c.HTTPAddr, f.HTTPAddr)
	if f.GRPCAddr != nil {
		c.GRPCAddr = *f.GRPCAddr
	}
	setString(&c.Env, f.Env)
	setString(&c.DBPath, f.DBPath)
	setString(&c.ProviderURL, f.ProviderURL)
	setString(&c.ContractAddress, f.ContractAddress)
	setString(&c.AccountAddress, f.AccountAddress)
	setString(&c.ABIPath, f.ABIPath)
	if f.GasLimit > 0 {
		c.GasLimit = f.GasLimit
	}
	if f.GasPriceGwei > 0 {
		c.GasPriceGwei = f.GasPriceGwei
	}
	if f.ReceiptTimeoutSeconds > 0 {
		c.ReceiptTimeout = time.Duration(f.ReceiptTimeoutSeconds) * time.Second
	}
	if f.ReceiptPollMS > 0 {
		c.ReceiptPoll = time.Duration(f.ReceiptPollMS) * time.Millisecond
	}
	if f.SubmitQueue > 0 {
		c.SubmitQueue = f.SubmitQueue
	}
	if f.SubmitRPS > 0 {
		c.SubmitRPS = f.SubmitRPS
	}
	if f.SubmitBurst > 0 {
		c.SubmitBurst = f.SubmitBurst
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getenvDefault("DECISIONLOG_HTTP_ADDR", c.HTTPAddr)
	if v, ok := os.LookupEnv("DECISIONLOG_GRPC_ADDR"); ok {
		c.GRPCAddr = strings.TrimSpace(v)
	}

	c.Env = strings.ToLower(getenvDefault("DECISIONLOG_ENV", c.Env))
	if c.Env != "dev" && c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}
	c.DBPath = getenvDefault("DECISIONLOG_DB_PATH", c.DBPath)

	c.ProviderURL = getenvDefault("DECISIONLOG_PROVIDER_URL", c.ProviderURL)
	c.ContractAddress = getenvDefault("DECISIONLOG_CONTRACT_ADDRESS", c.ContractAddress)
	c.AccountAddress = getenvDefault("DECISIONLOG_ACCOUNT_ADDRESS", c.AccountAddress)
	c.PrivateKey = getenvDefault("DECISIONLOG_PRIVATE_KEY", c.PrivateKey)
	c.ABIPath = getenvDefault("DECISIONLOG_ABI_PATH", c.ABIPath)

	c.GasLimit = uint64(getenvInt("DECISIONLOG_GAS_LIMIT", int(c.GasLimit)))
	c.GasPriceGwei = uint64(getenvInt("DECISIONLOG_GAS_PRICE_GWEI", int(c.GasPriceGwei)))
	c.ReceiptTimeout = time.Duration(getenvInt("DECISIONLOG_RECEIPT_TIMEOUT_SECONDS", int(c.ReceiptTimeout/time.Second))) * time.Second
	c.ReceiptPoll = time.Duration(getenvInt("DECISIONLOG_RECEIPT_POLL_MS", int(c.ReceiptPoll/time.Millisecond))) * time.Millisecond

	c.SubmitQueue = getenvInt("DECISIONLOG_SUBMIT_QUEUE", c.SubmitQueue)
	c.SubmitRPS = getenvFloat("DECISIONLOG_SUBMIT_RPS", c.SubmitRPS)
	c.SubmitBurst = getenvInt("DECISIONLOG_SUBMIT_BURST", c.SubmitBurst)
}

// GasPriceWei converts the configured gwei price.
func (c Config) GasPriceWei() *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(c.GasPriceGwei), big.NewInt(1_000_000_000))
}

// ValidateLedger reports every missing or malformed ledger setting at once.
func (c Config) ValidateLedger() error {
	var problems []string
	if strings.TrimSpace(c.ProviderURL) == "" {
		problems = append(problems, "DECISIONLOG_PROVIDER_URL is not set")
	}
	switch {
	case strings.TrimSpace(c.ContractAddress) == "":
		problems = append(problems, "DECISIONLOG_CONTRACT_ADDRESS is not set")
	case !common.IsHexAddress(c.ContractAddress):
		problems = append(problems, "DECISIONLOG_CONTRACT_ADDRESS is not a hex address")
	}
	if c.AccountAddress != "" && !common.IsHexAddress(c.AccountAddress) {
		problems = append(problems, "DECISIONLOG_ACCOUNT_ADDRESS is not a hex address")
	}
	if strings.TrimSpace(c.PrivateKey) == "" {
		problems = append(problems, "DECISIONLOG_PRIVATE_KEY is not set")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrLedgerConfig, strings.Join(problems, "; "))
	}
	return nil
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}
