// Package config loads runtime settings from a YAML file, a .env file and
// SOLPAY_* environment variables, in increasing order of precedence.
package config

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/psm-labs/solpay"
	"github.com/psm-labs/solpay/network"
)

//go:embed schema.json
var schemaJSON []byte

// Defaults
const (
	DefaultNetwork             = network.MainnetBeta
	DefaultFeeWallet           = "DjaRzzZi94Mq9zJvi23QbB5yRbCSRFENTDDeWicPVxcu"
	DefaultFeePercent          = 0.01
	DefaultMaxRetries          = 3
	DefaultRetryDelay          = time.Second
	DefaultProbeTimeout        = 10 * time.Second
	DefaultConfirmPollInterval = 2 * time.Second
	DefaultStorePath           = "solpay.db"
	DefaultServeAddr           = ":8080"
)

// EnvFile is the dotenv file read by Load. A missing file is ignored.
var EnvFile = ".env"

// Endpoint is an optional remote service. Set is false when no URL was
// configured, and the service is then skipped.
type Endpoint struct {
	URL string
	Set bool
}

// NewEndpoint returns an endpoint that is set when raw is non-empty.
func NewEndpoint(raw string) Endpoint {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	return Endpoint{URL: raw, Set: raw != ""}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *Endpoint) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*e = NewEndpoint(raw)
	return nil
}

func (e Endpoint) String() string {
	if !e.Set {
		return "(unset)"
	}
	return e.URL
}

func (e Endpoint) validate() error {
	if !e.Set {
		return nil
	}
	u, err := url.Parse(e.URL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServeConfig configures the status API.
type ServeConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the complete runtime configuration.
type Config struct {
	Network             string              `yaml:"network"`
	MerchantWallet      string              `yaml:"merchant_wallet"`
	FeeWallet           string              `yaml:"fee_wallet"`
	FeePercent          float64             `yaml:"fee_percent"`
	PriorityFee         uint64              `yaml:"priority_fee"`
	APIURL              Endpoint            `yaml:"api_url"`
	APIToken            string              `yaml:"api_token"`
	MinterURL           Endpoint            `yaml:"minter_url"`
	PriceURL            string              `yaml:"price_url"`
	StorePath           string              `yaml:"store_path"`
	Keypair             string              `yaml:"keypair"`
	MaxRetries          int                 `yaml:"max_retries"`
	RetryDelay          time.Duration       `yaml:"retry_delay"`
	ProbeTimeout        time.Duration       `yaml:"probe_timeout"`
	ConfirmPollInterval time.Duration       `yaml:"confirm_poll_interval"`
	Endpoints           map[string][]string `yaml:"endpoints"`
	Tiers               []solpay.Tier       `yaml:"tiers"`
	Log                 LogConfig           `yaml:"log"`
	Serve               ServeConfig         `yaml:"serve"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Network:             DefaultNetwork,
		FeeWallet:           DefaultFeeWallet,
		FeePercent:          DefaultFeePercent,
		StorePath:           DefaultStorePath,
		MaxRetries:          DefaultMaxRetries,
		RetryDelay:          DefaultRetryDelay,
		ProbeTimeout:        DefaultProbeTimeout,
		ConfirmPollInterval: DefaultConfirmPollInterval,
		Log:                 LogConfig{Level: "info", Format: "auto"},
		Serve:               ServeConfig{Addr: DefaultServeAddr},
	}
}

// Load reads the optional YAML file at path, then applies EnvFile and
// process environment overrides. The process environment wins over EnvFile.
func Load(path string) (Config, error) {
	dotenv, err := godotenv.Read(EnvFile)
	if err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read %s: %w", EnvFile, err)
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	return load(path, lookup)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		if err := validateSchema(raw); err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validateSchema checks the YAML document against the embedded JSON schema.
func validateSchema(raw []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if doc == nil {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	endpoint := func(key string, dst *Endpoint) {
		if v, ok := lookup(key); ok {
			*dst = NewEndpoint(v)
		}
	}

	str("SOLPAY_NETWORK", &cfg.Network)
	str("SOLPAY_MERCHANT_WALLET", &cfg.MerchantWallet)
	str("SOLPAY_FEE_WALLET", &cfg.FeeWallet)
	str("SOLPAY_STORE_PATH", &cfg.StorePath)
	str("SOLPAY_KEYPAIR", &cfg.Keypair)
	str("SOLPAY_API_TOKEN", &cfg.APIToken)
	str("SOLPAY_PRICE_URL", &cfg.PriceURL)
	str("SOLPAY_LOG_LEVEL", &cfg.Log.Level)
	str("SOLPAY_LOG_FORMAT", &cfg.Log.Format)
	str("SOLPAY_SERVE_ADDR", &cfg.Serve.Addr)
	endpoint("SOLPAY_API_URL", &cfg.APIURL)
	endpoint("SOLPAY_MINTER_URL", &cfg.MinterURL)

	if v, ok := lookup("SOLPAY_FEE_PERCENT"); ok && strings.TrimSpace(v) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("SOLPAY_FEE_PERCENT: %w", err)
		}
		cfg.FeePercent = f
	}
	if v, ok := lookup("SOLPAY_PRIORITY_FEE"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("SOLPAY_PRIORITY_FEE: %w", err)
		}
		cfg.PriorityFee = n
	}
	if v, ok := lookup("SOLPAY_MAX_RETRIES"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("SOLPAY_MAX_RETRIES: %w", err)
		}
		cfg.MaxRetries = n
	}
	if v, ok := lookup("SOLPAY_RETRY_DELAY"); ok && strings.TrimSpace(v) != "" {
		d, err := parseDelay(v)
		if err != nil {
			return fmt.Errorf("SOLPAY_RETRY_DELAY: %w", err)
		}
		cfg.RetryDelay = d
	}
	return nil
}

// parseDelay accepts a Go duration or a bare number of milliseconds.
func parseDelay(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

func (cfg *Config) normalize() {
	cfg.Network = strings.ToLower(strings.TrimSpace(cfg.Network))
	cfg.MerchantWallet = strings.TrimSpace(cfg.MerchantWallet)
	cfg.FeeWallet = strings.TrimSpace(cfg.FeeWallet)
	if cfg.FeeWallet == "" {
		cfg.FeeWallet = DefaultFeeWallet
	}
	cfg.StorePath = strings.TrimSpace(cfg.StorePath)
	if cfg.StorePath == "" {
		cfg.StorePath = DefaultStorePath
	}
	cfg.Serve.Addr = strings.TrimSpace(cfg.Serve.Addr)
	if cfg.Serve.Addr == "" {
		cfg.Serve.Addr = DefaultServeAddr
	}
	for name, endpoints := range cfg.Endpoints {
		cleaned := endpoints[:0]
		for _, ep := range endpoints {
			if trimmed := strings.TrimSpace(ep); trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		cfg.Endpoints[name] = cleaned
	}
}

// Validate reports the first invalid setting.
func (cfg Config) Validate() error {
	if !network.IsValid(cfg.Network) {
		return fmt.Errorf("network: invalid network %q (use %s)", cfg.Network, strings.Join(network.Names(), ", "))
	}
	if cfg.MerchantWallet != "" {
		if _, err := solana.PublicKeyFromBase58(cfg.MerchantWallet); err != nil {
			return fmt.Errorf("merchant_wallet: %w", err)
		}
	}
	if _, err := solana.PublicKeyFromBase58(cfg.FeeWallet); err != nil {
		return fmt.Errorf("fee_wallet: %w", err)
	}
	if cfg.FeePercent <= 0 || cfg.FeePercent >= 1 {
		return fmt.Errorf("fee_percent: must be in (0, 1), got %v", cfg.FeePercent)
	}
	if cfg.MaxRetries < 1 {
		return fmt.Errorf("max_retries: must be at least 1, got %d", cfg.MaxRetries)
	}
	if cfg.RetryDelay < 0 {
		return fmt.Errorf("retry_delay: must not be negative")
	}
	if err := cfg.APIURL.validate(); err != nil {
		return fmt.Errorf("api_url: %w", err)
	}
	if err := cfg.MinterURL.validate(); err != nil {
		return fmt.Errorf("minter_url: %w", err)
	}
	for name := range cfg.Endpoints {
		if !network.IsValid(name) {
			return fmt.Errorf("endpoints: unknown network %q", name)
		}
	}
	if len(cfg.Tiers) > 0 {
		if err := cfg.Catalog().Validate(); err != nil {
			return fmt.Errorf("tiers: %w", err)
		}
	}
	return nil
}

// Catalog returns the configured tiers, or the built-in catalog.
func (cfg Config) Catalog() solpay.Catalog {
	if len(cfg.Tiers) == 0 {
		return solpay.DefaultCatalog()
	}
	catalog := make(solpay.Catalog, len(cfg.Tiers))
	for _, tier := range cfg.Tiers {
		catalog[tier.ID] = tier
	}
	return catalog
}

// Selector returns a network selector with the configured endpoint overrides.
func (cfg Config) Selector() (*network.Selector, error) {
	return network.NewSelector(cfg.Network, cfg.Endpoints)
}

// Merchant parses the merchant wallet. It fails when none is configured.
func (cfg Config) Merchant() (solana.PublicKey, error) {
	if cfg.MerchantWallet == "" {
		return solana.PublicKey{}, fmt.Errorf("merchant wallet is not configured (set SOLPAY_MERCHANT_WALLET)")
	}
	return solana.PublicKeyFromBase58(cfg.MerchantWallet)
}
