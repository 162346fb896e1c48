package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const sample = `
server:
  port: 9090
  read_timeout: 5s
gateway:
  owner: "0x00000000000000000000000000000000000000aa"
  fee_recipient: "0x00000000000000000000000000000000000000fe"
  custodian: "0x00000000000000000000000000000000000ca5e0"
  platform_fee_bps: 7
adapters:
  - name: across
    identity: "0x0000000000000000000000000000000000000f01"
    kind: http
    endpoint: "http://executor.local/dispatch"
    timeout: 3s
  - name: hop
    identity: "0x0000000000000000000000000000000000000f02"
    kind: nats
    subject: "executors.hop"
routes:
  - name: fast
    adapter: across
    fee_bps: 10
    latency: 60
    exec_cost: 50000
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	require.Equal(t, 15*time.Second, cfg.Server.WriteTimeout, "unset fields keep defaults")
	require.Equal(t, uint32(7), cfg.Gateway.PlatformFeeBps)
	require.Equal(t, uint32(1000), cfg.Gateway.FeeCapBps)
	require.Len(t, cfg.Adapters, 2)
	require.Equal(t, 3*time.Second, cfg.Adapters[0].Timeout)
	require.Equal(t, "crossroute.events", cfg.NATS.SubjectPrefix)

	id, ok := cfg.AdapterIdentity("hop")
	require.True(t, ok)
	require.Equal(t, common.HexToAddress("0x0000000000000000000000000000000000000f02"), id)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/crossroute")
	t.Setenv("NATS_URL", "nats://broker:4222")
	t.Setenv("API_PORT", "7070")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	require.Equal(t, "postgres://localhost/crossroute", cfg.Database.DSN)
	require.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Log.Level)

	t.Setenv("API_PORT", "not-a-port")
	_, err = Load("")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "server: [unterminated"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero owner", func(c *Config) { c.Gateway.Owner = "0x0000000000000000000000000000000000000000" }},
		{"bad recipient", func(c *Config) { c.Gateway.FeeRecipient = "treasury" }},
		{"fee above cap", func(c *Config) { c.Gateway.PlatformFeeBps = 2000 }},
		{"cap above scale", func(c *Config) { c.Gateway.FeeCapBps = 20000 }},
		{"unknown adapter kind", func(c *Config) { c.Adapters[0].Kind = "grpc" }},
		{"http without endpoint", func(c *Config) { c.Adapters[0].Endpoint = "" }},
		{"nats without subject", func(c *Config) { c.Adapters[1].Subject = "" }},
		{"duplicate identity", func(c *Config) { c.Adapters[1].Identity = c.Adapters[0].Identity }},
		{"route to unknown adapter", func(c *Config) { c.Routes[0].Adapter = "stargate" }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown custody", func(c *Config) { c.Custody.Kind = "s3" }},
		{"erc20 without rpc", func(c *Config) { c.Custody = CustodyConfig{Kind: CustodyERC20, PrivateKey: "ab"} }},
		{"erc20 without key", func(c *Config) { c.Custody = CustodyConfig{Kind: CustodyERC20, RPCURL: "http://node:8545"} }},
		{"seed with bad amount", func(c *Config) {
			c.Custody.Seed = []SeedBalance{{Asset: c.Gateway.Custodian, Account: c.Gateway.Owner, Amount: "-1"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, sample))
			require.NoError(t, err)
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoad_Custody(t *testing.T) {
	body := sample + `
custody:
  seed:
    - asset: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
      account: "0x0000000000000000000000000000000000000a11"
      amount: "1000000"
`
	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, CustodyVault, cfg.Custody.Kind, "kind keeps its default")
	require.Equal(t, 2*time.Second, cfg.Custody.ReceiptPoll)
	require.Len(t, cfg.Custody.Seed, 1)

	t.Setenv("CUSTODY_RPC_URL", "http://node:8545")
	t.Setenv("CUSTODY_PRIVATE_KEY", "deadbeef")
	cfg, err = Load(writeConfig(t, sample+"\ncustody:\n  kind: erc20\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, "http://node:8545", cfg.Custody.RPCURL)
	require.Equal(t, "deadbeef", cfg.Custody.PrivateKey)
}
