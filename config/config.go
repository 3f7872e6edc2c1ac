// Package config loads client and server settings from YAML overlaid by environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Client configures the wallet client and CLI
type Client struct {
	AppName       string            `yaml:"app_name"`
	ChainID       string            `yaml:"chain_id"`
	RPCURL        string            `yaml:"rpc_url"`
	BackendURL    string            `yaml:"backend_url"`
	Contract      string            `yaml:"contract"`
	TokenDecimals int32             `yaml:"token_decimals"`
	StatePath     string            `yaml:"state_path"`
	PollInterval  time.Duration     `yaml:"poll_interval"`
	Events        map[string]string `yaml:"events"`
	Wallets       Wallets           `yaml:"wallets"`
	LogLevel      string            `yaml:"log_level"`
}

// Wallets lists the wallet adapters discovery may probe, in order
type Wallets struct {
	Order    []string `yaml:"order"`
	Keystore Keystore `yaml:"keystore"`
	Clef     Clef     `yaml:"clef"`
}

// Keystore points at an encrypted key directory
type Keystore struct {
	Dir           string `yaml:"dir"`
	Account       string `yaml:"account"`
	PassphraseEnv string `yaml:"passphrase_env"`
}

// Clef is an external signer endpoint
type Clef struct {
	Endpoint string `yaml:"endpoint"`
}

// Server configures the reference backend
type Server struct {
	Listen         string        `yaml:"listen"`
	RedisURL       string        `yaml:"redis_url"`
	DatabaseURL    string        `yaml:"database_url"`
	AppName        string        `yaml:"app_name"`
	ChainID        string        `yaml:"chain_id"`
	SigningKeyPath string        `yaml:"signing_key"`
	SecureCookie   bool          `yaml:"secure_cookie"`
	NonceTTL       time.Duration `yaml:"nonce_ttl"`
	AccessTTL      time.Duration `yaml:"access_ttl"`
	RefreshTTL     time.Duration `yaml:"refresh_ttl"`
	LogLevel       string        `yaml:"log_level"`
}

// DefaultClient returns the client defaults
func DefaultClient() Client {
	return Client{
		AppName:       "Stindem",
		ChainID:       "11155111",
		RPCURL:        "http://localhost:8545",
		BackendURL:    "http://localhost:9000",
		TokenDecimals: 18,
		StatePath:     "stindem.db",
		PollInterval:  2 * time.Second,
		Wallets: Wallets{
			Order:    []string{"keystore", "clef"},
			Keystore: Keystore{PassphraseEnv: "STINDEM_KEYSTORE_PASSPHRASE"},
			Clef:     Clef{Endpoint: "http://localhost:8550"},
		},
		LogLevel: "info",
	}
}

// DefaultServer returns the server defaults
func DefaultServer() Server {
	return Server{
		Listen:      ":9000",
		RedisURL:    "redis://localhost:6379/0",
		DatabaseURL: "stindem-ledger.db",
		AppName:     "Stindem",
		ChainID:     "11155111",
		NonceTTL:    5 * time.Minute,
		AccessTTL:   5 * time.Minute,
		RefreshTTL:  5 * 24 * time.Hour,
		LogLevel:    "info",
	}
}

func decodeFile(path string, out interface{}) error {
	if path == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(out); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// LoadClient reads path (optional) and applies STINDEM_* overrides
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	if err := decodeFile(path, &cfg); err != nil {
		return Client{}, err
	}

	setString(&cfg.AppName, "STINDEM_APP_NAME")
	setString(&cfg.ChainID, "STINDEM_CHAIN_ID")
	setString(&cfg.RPCURL, "STINDEM_RPC_URL")
	setString(&cfg.BackendURL, "STINDEM_BACKEND_URL")
	setString(&cfg.Contract, "STINDEM_CONTRACT")
	setString(&cfg.StatePath, "STINDEM_STATE_PATH")
	setString(&cfg.Wallets.Keystore.Dir, "STINDEM_KEYSTORE_DIR")
	setString(&cfg.Wallets.Keystore.Account, "STINDEM_KEYSTORE_ACCOUNT")
	setString(&cfg.Wallets.Clef.Endpoint, "STINDEM_CLEF_URL")
	setString(&cfg.LogLevel, "STINDEM_LOG_LEVEL")
	if err := setDuration(&cfg.PollInterval, "STINDEM_POLL_INTERVAL"); err != nil {
		return Client{}, err
	}
	if v := os.Getenv("STINDEM_TOKEN_DECIMALS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return Client{}, fmt.Errorf("STINDEM_TOKEN_DECIMALS: %w", err)
		}
		cfg.TokenDecimals = int32(n)
	}

	if err := cfg.Validate(); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

// Validate checks the client settings
func (c Client) Validate() error {
	var errs []error
	if strings.TrimSpace(c.AppName) == "" {
		errs = append(errs, errors.New("app_name is required"))
	}
	if strings.TrimSpace(c.ChainID) == "" {
		errs = append(errs, errors.New("chain_id is required"))
	}
	if c.BackendURL == "" {
		errs = append(errs, errors.New("backend_url is required"))
	}
	if c.Contract != "" && !common.IsHexAddress(c.Contract) {
		errs = append(errs, fmt.Errorf("contract %q is not an address", c.Contract))
	}
	if c.TokenDecimals < 0 || c.TokenDecimals > 77 {
		errs = append(errs, fmt.Errorf("token_decimals %d out of range", c.TokenDecimals))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	for _, kind := range c.Wallets.Order {
		switch kind {
		case "keystore", "clef":
		default:
			errs = append(errs, fmt.Errorf("unknown wallet kind %q", kind))
		}
	}
	return errors.Join(errs...)
}

// LoadServer reads path (optional) and applies overrides. REDIS_URL is honoured as is.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()
	if err := decodeFile(path, &cfg); err != nil {
		return Server{}, err
	}

	setString(&cfg.Listen, "STINDEM_LISTEN")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.DatabaseURL, "STINDEM_DATABASE_URL")
	setString(&cfg.AppName, "STINDEM_APP_NAME")
	setString(&cfg.ChainID, "STINDEM_CHAIN_ID")
	setString(&cfg.SigningKeyPath, "STINDEM_SIGNING_KEY")
	setString(&cfg.LogLevel, "STINDEM_LOG_LEVEL")
	if v := os.Getenv("STINDEM_SECURE_COOKIE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Server{}, fmt.Errorf("STINDEM_SECURE_COOKIE: %w", err)
		}
		cfg.SecureCookie = b
	}
	for key, dst := range map[string]*time.Duration{
		"STINDEM_NONCE_TTL":   &cfg.NonceTTL,
		"STINDEM_ACCESS_TTL":  &cfg.AccessTTL,
		"STINDEM_REFRESH_TTL": &cfg.RefreshTTL,
	} {
		if err := setDuration(dst, key); err != nil {
			return Server{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks the server settings
func (s Server) Validate() error {
	var errs []error
	if s.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if s.AppName == "" || s.ChainID == "" {
		errs = append(errs, errors.New("app_name and chain_id are required"))
	}
	if s.DatabaseURL == "" {
		errs = append(errs, errors.New("database_url is required"))
	}
	if s.NonceTTL <= 0 || s.AccessTTL <= 0 || s.RefreshTTL <= 0 {
		errs = append(errs, errors.New("ttls must be positive"))
	}
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

// NewLogger builds a production zap logger at level
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
