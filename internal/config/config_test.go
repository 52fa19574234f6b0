package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"timelockWatcher/internal/model"
)

const sampleConfig = `
rpc: wss://node.example.org/ws
pg-dsn: postgres://watcher@localhost/watcher
poll-interval: 30s
concurrency: 2
contracts:
  - table: timelock
    address: "0x1111111111111111111111111111111111111111"
    start-block: 100
  - table: reward_reserve
    address: "0x2222222222222222222222222222222222222222"
    interval: 10h
    decimals: 6
  - table: token
    address: "0x3333333333333333333333333333333333333333"
    events-enabled: false
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.RPCURL != "wss://node.example.org/ws" || cfg.PGDSN != "postgres://watcher@localhost/watcher" {
		t.Fatalf("unexpected endpoints %+v", cfg)
	}
	if cfg.PollInterval != 30*time.Second || cfg.Concurrency != 2 {
		t.Fatalf("unexpected scheduling settings %+v", cfg)
	}
	if cfg.BatchSize != 5000 || cfg.MaxRetries != 3 || cfg.ReconnectDelay != 5*time.Second || cfg.ReconnectMaxDelay != time.Minute {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if len(cfg.Contracts) != 3 {
		t.Fatalf("expected 3 contracts, got %d", len(cfg.Contracts))
	}
	if cfg.Contracts[1].Interval != 10*time.Hour {
		t.Fatalf("expected 10h interval, got %s", cfg.Contracts[1].Interval)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("WATCHER_PG_DSN", "postgres://env@db/watcher")
	t.Setenv("WATCHER_BATCH_SIZE", "250")

	cfg, err := Load(writeConfig(t, sampleConfig), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PGDSN != "postgres://env@db/watcher" || cfg.BatchSize != 250 {
		t.Fatalf("env not applied: %+v", cfg)
	}
}

func TestLoadRejectsBadIntervals(t *testing.T) {
	if _, err := Load(writeConfig(t, "poll-interval: 0s\n"), nil); err == nil {
		t.Fatalf("expected error for zero poll interval")
	}
}

func TestWatches(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	watches, tables, err := Watches(cfg.Contracts)
	if err != nil {
		t.Fatalf("watches: %v", err)
	}
	if len(watches) != 3 {
		t.Fatalf("expected 3 watches, got %d", len(watches))
	}

	timelock := watches[0]
	if timelock.Address != common.HexToAddress("0x1111111111111111111111111111111111111111") {
		t.Fatalf("unexpected address %s", timelock.Address.Hex())
	}
	if timelock.StartBlock != 100 || timelock.Decimals != model.DefaultDecimals || !timelock.Events.Enabled {
		t.Fatalf("unexpected timelock watch %+v", timelock)
	}
	if timelock.Events.Frozen != "TokensFrozen" || timelock.Events.Unfrozen != "TokensUnfrozen" ||
		timelock.Events.AddressArg != "addr" || timelock.Events.AmountArg != "amt" {
		t.Fatalf("default event names not applied: %+v", timelock.Events)
	}
	if _, ok := timelock.ABI.Events["TokensFrozen"]; !ok {
		t.Fatalf("default ABI not loaded")
	}

	if watches[1].Decimals != 6 || watches[1].Interval != 10*time.Hour {
		t.Fatalf("unexpected reserve watch %+v", watches[1])
	}
	if watches[2].Events.Enabled {
		t.Fatalf("token events should be disabled")
	}

	for _, name := range []string{"timelock", "reward_reserve", "token"} {
		if err := tables.Check(name); err != nil {
			t.Fatalf("table %s not allowed: %v", name, err)
		}
	}
	if err := tables.Check("users"); err == nil {
		t.Fatalf("unconfigured table allowed")
	}
}

func TestWatchesRejectsInvalidEntries(t *testing.T) {
	valid := ContractConfig{Table: "timelock", Address: "0x1111111111111111111111111111111111111111"}

	cases := map[string][]ContractConfig{
		"empty":            nil,
		"bad address":      {{Table: "timelock", Address: "0x1234"}},
		"bad table":        {{Table: "Timelock; DROP TABLE x", Address: valid.Address}},
		"duplicate table":  {valid, valid},
		"missing event":    {{Table: "timelock", Address: valid.Address, FrozenEvent: "Locked"}},
		"missing argument": {{Table: "timelock", Address: valid.Address, AmountArg: "value"}},
		"missing abi file": {{Table: "timelock", Address: valid.Address, ABI: "/nonexistent/abi.json"}},
		"same events":      {{Table: "timelock", Address: valid.Address, UnfrozenEvent: "TokensFrozen"}},
	}
	for name, entries := range cases {
		if _, _, err := Watches(entries); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestWatchesAcceptsArtifactABI(t *testing.T) {
	artifact := `{"contractName":"Vault","abi":[
		{"anonymous":false,"inputs":[
			{"indexed":true,"name":"owner","type":"address"},
			{"indexed":false,"name":"value","type":"uint256"}],
		 "name":"Locked","type":"event"},
		{"anonymous":false,"inputs":[
			{"indexed":true,"name":"owner","type":"address"},
			{"indexed":false,"name":"value","type":"uint256"}],
		 "name":"Unlocked","type":"event"}]}`
	path := filepath.Join(t.TempDir(), "vault.json")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(artifact)), 0o644); err != nil {
		t.Fatalf("write abi: %v", err)
	}

	watches, _, err := Watches([]ContractConfig{{
		Table:         "vault",
		Address:       "0x4444444444444444444444444444444444444444",
		ABI:           path,
		FrozenEvent:   "Locked",
		UnfrozenEvent: "Unlocked",
		AddressArg:    "owner",
		AmountArg:     "value",
	}})
	if err != nil {
		t.Fatalf("watches: %v", err)
	}
	if watches[0].Events.Frozen != "Locked" || watches[0].Events.AmountArg != "value" {
		t.Fatalf("unexpected events %+v", watches[0].Events)
	}
}
