package main

import (
	"context"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/lucendex/crossroute/internal/adapters"
	"github.com/lucendex/crossroute/internal/config"
	"github.com/lucendex/crossroute/internal/custody"
	"github.com/lucendex/crossroute/internal/gateway"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "env set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "env not set",
			key:          "NONEXISTENT_KEY",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
		{
			name:         "empty env",
			key:          "EMPTY_KEY",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnv_Defaults(t *testing.T) {
	defaults := map[string]string{
		"CONFIG_PATH": "",
		"NATS_URL":    "nats://localhost:4222",
	}

	for key, defaultVal := range defaults {
		os.Unsetenv(key)
		got := getEnv(key, defaultVal)
		if got != defaultVal {
			t.Errorf("getEnv(%s) = %v, want %v", key, got, defaultVal)
		}
	}
}

const (
	owner     = "0x00000000000000000000000000000000000000aa"
	treasury  = "0x00000000000000000000000000000000000000fe"
	custodian = "0x00000000000000000000000000000000000ca5e0"
	executor  = "0x0000000000000000000000000000000000000f01"
	usdc      = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	alice     = "0x00000000000000000000000000000000000a11ce"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Gateway.Owner = owner
	cfg.Gateway.FeeRecipient = treasury
	cfg.Gateway.Custodian = custodian
	cfg.Adapters = []config.AdapterConfig{
		{Name: "across", Identity: executor, Kind: config.AdapterHTTP, Endpoint: "http://executor.local/dispatch"},
	}
	cfg.Routes = []config.RouteConfig{
		{Name: "fast", Adapter: "across", FeeBps: 10, Latency: 60, ExecCost: 50000},
		{Name: "cheap", Adapter: "across", FeeBps: 2, Latency: 900, ExecCost: 10000},
	}
	cfg.Custody.Seed = []config.SeedBalance{{Asset: usdc, Account: alice, Amount: "2500"}}
	return cfg
}

func TestBuildCustody_VaultSeed(t *testing.T) {
	cfg := testConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	c, closeFn, err := buildCustody(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("buildCustody() error = %v", err)
	}
	defer closeFn()

	vault, ok := c.(*custody.Vault)
	if !ok {
		t.Fatalf("custody = %T, want *custody.Vault", c)
	}
	if got := vault.BalanceOf(common.HexToAddress(usdc), common.HexToAddress(alice)); !got.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("seeded balance = %s, want 2500", got)
	}
	if vault.Custodian() != common.HexToAddress(custodian) {
		t.Errorf("custodian = %s", vault.Custodian().Hex())
	}
}

func TestBuildCustody_BadSeed(t *testing.T) {
	cfg := testConfig()
	cfg.Custody.Seed[0].Amount = "lots"
	if _, _, err := buildCustody(context.Background(), cfg, nil); err == nil {
		t.Error("expected an error for an unparseable seed amount")
	}
}

func TestSeedRoutes(t *testing.T) {
	cfg := testConfig()
	logger, _ := test.NewNullLogger()
	set, err := adapters.FromConfig(cfg.Adapters, nil, logger)
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	c, _, err := buildCustody(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	gw, err := gateway.New(gateway.Config{
		Owner:        common.HexToAddress(owner),
		FeeRecipient: common.HexToAddress(treasury),
	}, gateway.Dependencies{Custody: c, Adapters: set, Logger: logger})
	if err != nil {
		t.Fatalf("gateway.New() error = %v", err)
	}

	if err := seedRoutes(context.Background(), gw, cfg); err != nil {
		t.Fatalf("seedRoutes() error = %v", err)
	}
	got := gw.ListActiveProtocols()
	if len(got) != 2 || got[0] != "fast" || got[1] != "cheap" {
		t.Errorf("protocols = %v, want [fast cheap]", got)
	}

	// restarting with the same file updates in place
	cfg.Routes[0].FeeBps = 12
	if err := seedRoutes(context.Background(), gw, cfg); err != nil {
		t.Fatalf("second seedRoutes() error = %v", err)
	}
	if got := gw.ListActiveProtocols(); len(got) != 2 {
		t.Errorf("protocols after reseed = %v", got)
	}
	if r, _ := gw.GetRoute("fast"); r.FeeBps != 12 {
		t.Errorf("fast fee = %d, want 12", r.FeeBps)
	}

	cfg.Routes = append(cfg.Routes, config.RouteConfig{Name: "ghost", Adapter: "stargate"})
	if err := seedRoutes(context.Background(), gw, cfg); err == nil {
		t.Error("expected an error for a route without a configured adapter")
	}
}
