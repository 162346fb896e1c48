package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	AdapterHTTP = "http"
	AdapterNATS = "nats"

	CustodyVault = "vault"
	CustodyERC20 = "erc20"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Database DatabaseConfig  `yaml:"database"`
	NATS     NATSConfig      `yaml:"nats"`
	Log      LogConfig       `yaml:"log"`
	Gateway  GatewayConfig   `yaml:"gateway"`
	Custody  CustodyConfig   `yaml:"custody"`
	Breaker  BreakerConfig   `yaml:"breaker"`
	Adapters []AdapterConfig `yaml:"adapters"`
	Routes   []RouteConfig   `yaml:"routes"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	// InternalToken guards /metrics and the event stream.
	InternalToken string `yaml:"internal_token"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type NATSConfig struct {
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	Timeout       time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type GatewayConfig struct {
	Owner          string `yaml:"owner"`
	FeeRecipient   string `yaml:"fee_recipient"`
	Custodian      string `yaml:"custodian"`
	PlatformFeeBps uint32 `yaml:"platform_fee_bps"`
	FeeCapBps      uint32 `yaml:"fee_cap_bps"`
}

// CustodyConfig picks where balances live. The vault keeps them in process and
// accepts seed balances; erc20 signs token calls against an RPC endpoint with
// the key from CUSTODY_PRIVATE_KEY, never from the file.
type CustodyConfig struct {
	Kind        string        `yaml:"kind"`
	RPCURL      string        `yaml:"rpc_url"`
	ReceiptPoll time.Duration `yaml:"receipt_poll"`
	PrivateKey  string        `yaml:"-"`
	Seed        []SeedBalance `yaml:"seed"`
}

type SeedBalance struct {
	Asset   string `yaml:"asset"`
	Account string `yaml:"account"`
	Amount  string `yaml:"amount"`
}

type BreakerConfig struct {
	FailureLimit int           `yaml:"failure_limit"`
	Cooldown     time.Duration `yaml:"cooldown"`
}

type AdapterConfig struct {
	Name     string        `yaml:"name"`
	Identity string        `yaml:"identity"`
	Kind     string        `yaml:"kind"`
	Endpoint string        `yaml:"endpoint"`
	Subject  string        `yaml:"subject"`
	Timeout  time.Duration `yaml:"timeout"`
}

type RouteConfig struct {
	Name     string `yaml:"name"`
	Adapter  string `yaml:"adapter"`
	FeeBps   uint32 `yaml:"fee_bps"`
	Latency  uint64 `yaml:"latency"`
	ExecCost uint64 `yaml:"exec_cost"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		NATS: NATSConfig{
			SubjectPrefix: "crossroute.events",
			Timeout:       10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Gateway: GatewayConfig{
			PlatformFeeBps: 5,
			FeeCapBps:      1000,
		},
		Custody: CustodyConfig{
			Kind:        CustodyVault,
			ReceiptPoll: 2 * time.Second,
		},
		Breaker: BreakerConfig{
			FailureLimit: 5,
			Cooldown:     30 * time.Second,
		},
	}
}

// Load reads a YAML file over the defaults and applies environment overrides.
// An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := overrideFromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overrideFromEnv(cfg *Config) error {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.NATS.URL = url
	}
	if port := os.Getenv("API_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("%w: API_PORT %q", ErrInvalidConfig, port)
		}
		cfg.Server.Port = p
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if token := os.Getenv("INTERNAL_TOKEN"); token != "" {
		cfg.Server.InternalToken = token
	}
	if rpc := os.Getenv("CUSTODY_RPC_URL"); rpc != "" {
		cfg.Custody.RPCURL = rpc
	}
	cfg.Custody.PrivateKey = os.Getenv("CUSTODY_PRIVATE_KEY")
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d", ErrInvalidConfig, c.Server.Port)
	}
	for field, addr := range map[string]string{
		"gateway.owner":         c.Gateway.Owner,
		"gateway.fee_recipient": c.Gateway.FeeRecipient,
		"gateway.custodian":     c.Gateway.Custodian,
	} {
		if !isAddress(addr) {
			return fmt.Errorf("%w: %s must be a non-zero address", ErrInvalidConfig, field)
		}
	}
	if c.Gateway.FeeCapBps > 10000 {
		return fmt.Errorf("%w: fee cap %d bps above 10000", ErrInvalidConfig, c.Gateway.FeeCapBps)
	}
	if c.Gateway.PlatformFeeBps > c.Gateway.FeeCapBps {
		return fmt.Errorf("%w: platform fee %d bps above cap %d", ErrInvalidConfig, c.Gateway.PlatformFeeBps, c.Gateway.FeeCapBps)
	}

	if err := c.Custody.validate(); err != nil {
		return err
	}

	names := make(map[string]bool)
	identities := make(map[string]bool)
	for _, a := range c.Adapters {
		if a.Name == "" || names[a.Name] {
			return fmt.Errorf("%w: adapter name %q missing or repeated", ErrInvalidConfig, a.Name)
		}
		names[a.Name] = true
		if !isAddress(a.Identity) {
			return fmt.Errorf("%w: adapter %s identity", ErrInvalidConfig, a.Name)
		}
		id := strings.ToLower(a.Identity)
		if identities[id] {
			return fmt.Errorf("%w: adapter identity %s used twice", ErrInvalidConfig, a.Identity)
		}
		identities[id] = true

		switch a.Kind {
		case AdapterHTTP:
			if a.Endpoint == "" {
				return fmt.Errorf("%w: adapter %s needs an endpoint", ErrInvalidConfig, a.Name)
			}
		case AdapterNATS:
			if a.Subject == "" {
				return fmt.Errorf("%w: adapter %s needs a subject", ErrInvalidConfig, a.Name)
			}
		default:
			return fmt.Errorf("%w: adapter %s kind %q", ErrInvalidConfig, a.Name, a.Kind)
		}
	}

	for _, r := range c.Routes {
		if !names[r.Adapter] {
			return fmt.Errorf("%w: route %s references unknown adapter %q", ErrInvalidConfig, r.Name, r.Adapter)
		}
	}
	return nil
}

func (c *CustodyConfig) validate() error {
	switch c.Kind {
	case CustodyVault:
		for _, s := range c.Seed {
			if !isAddress(s.Asset) || !isAddress(s.Account) {
				return fmt.Errorf("%w: custody seed needs asset and account addresses", ErrInvalidConfig)
			}
			amount, err := decimal.NewFromString(s.Amount)
			if err != nil || !amount.IsPositive() {
				return fmt.Errorf("%w: custody seed amount %q", ErrInvalidConfig, s.Amount)
			}
		}
	case CustodyERC20:
		if c.RPCURL == "" {
			return fmt.Errorf("%w: erc20 custody needs rpc_url", ErrInvalidConfig)
		}
		if c.PrivateKey == "" {
			return fmt.Errorf("%w: erc20 custody needs CUSTODY_PRIVATE_KEY", ErrInvalidConfig)
		}
		if len(c.Seed) > 0 {
			return fmt.Errorf("%w: seed balances only apply to the vault", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: custody kind %q", ErrInvalidConfig, c.Kind)
	}
	return nil
}

// AdapterIdentity resolves an adapter name to its configured identity.
func (c *Config) AdapterIdentity(name string) (common.Address, bool) {
	for _, a := range c.Adapters {
		if a.Name == name {
			return common.HexToAddress(a.Identity), true
		}
	}
	return common.Address{}, false
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func isAddress(s string) bool {
	return common.IsHexAddress(s) && common.HexToAddress(s) != (common.Address{})
}
