package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "intentlane.json", `{"domain":{"id":7}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("server address default: %q", cfg.Server.Address)
	}
	if cfg.Storage.Driver != "memory" || cfg.Queue.Driver != "memory" {
		t.Fatalf("backend defaults: storage=%q queue=%q", cfg.Storage.Driver, cfg.Queue.Driver)
	}
	if cfg.Queue.Size != 256 {
		t.Fatalf("queue size default: %d", cfg.Queue.Size)
	}
	if cfg.Settlement.MaxRetries != 3 || cfg.Settlement.Workers != 4 {
		t.Fatalf("settlement defaults: %+v", cfg.Settlement)
	}
	if cfg.Settlement.VerifyIntentID || cfg.Settlement.StrictFingerprint {
		t.Fatalf("strict checks must default off: %+v", cfg.Settlement)
	}
	if len(cfg.Events.Sinks) != 1 || cfg.Events.Sinks[0] != "audit" {
		t.Fatalf("event sink default: %v", cfg.Events.Sinks)
	}
	if cfg.Alerting.Enabled {
		t.Fatalf("alerting must default off: %+v", cfg.Alerting)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("data dir default: %q", cfg.Runtime.DataDir)
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "intentlane.json", `{
		"domain": {"id": 7, "definitions": "domain.yaml"},
		"runtime": {"data_dir": "var/intentlane"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Domain.Definitions != filepath.Join(dir, "domain.yaml") {
		t.Fatalf("definitions path not resolved: %q", cfg.Domain.Definitions)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "var", "intentlane") {
		t.Fatalf("data dir not resolved: %q", cfg.Runtime.DataDir)
	}
}

func TestLoadParsesAlerting(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "intentlane.json", `{
		"domain": {"id": 7},
		"alerting": {
			"enabled": true,
			"dingtalk": {"webhook": "https://oapi.dingtalk.com/robot/send?access_token=x"},
			"slack": {"webhook": "https://hooks.slack.com/services/x", "channel": "#settlement-ops"}
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Alerting.Enabled {
		t.Fatal("alerting not enabled")
	}
	if cfg.Alerting.DingTalk.Webhook == "" {
		t.Fatal("dingtalk webhook dropped")
	}
	if cfg.Alerting.Slack.Channel != "#settlement-ops" {
		t.Fatalf("slack channel: %q", cfg.Alerting.Slack.Channel)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}

	dir := t.TempDir()
	path := writeFile(t, dir, "broken.json", `{"server":`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed json")
	}
}

func TestLoadDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "domain.yaml", `
domain:
  id: 7
  name: settlement-test
tokens:
  - address: "0x00000000000000000000000000000000000010aa"
    symbol: USDX
    decimals: 6
genesis:
  balances:
    - token: "0x00000000000000000000000000000000000010aa"
      holder: "0x00000000000000000000000000000000000000f1"
      amount: "1000000"
  native:
    - account: "0x00000000000000000000000000000000000000f1"
      amount: "500"
  approvals:
    - token: "0x00000000000000000000000000000000000010aa"
      owner: "0x00000000000000000000000000000000000000f1"
      spender: escrow
      amount: "1000000"
`)

	defs, err := LoadDefinitions(path)
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	if defs.Domain.ID != 7 || defs.Domain.Name != "settlement-test" {
		t.Fatalf("domain meta: %+v", defs.Domain)
	}
	if len(defs.Tokens) != 1 || defs.Tokens[0].Symbol != "USDX" {
		t.Fatalf("tokens: %+v", defs.Tokens)
	}
	if got := defs.Genesis.Balances[0].AmountBig().Int64(); got != 1000000 {
		t.Fatalf("balance amount: %d", got)
	}
	if got := defs.Genesis.Native[0].AmountBig().Int64(); got != 500 {
		t.Fatalf("native amount: %d", got)
	}
	if defs.Genesis.Approvals[0].Spender != "escrow" {
		t.Fatalf("approval spender: %q", defs.Genesis.Approvals[0].Spender)
	}
}

func TestLoadDefinitionsValidation(t *testing.T) {
	cases := map[string]string{
		"bad token address": `
tokens:
  - address: "not-an-address"
`,
		"bad balance amount": `
genesis:
  balances:
    - token: "0x00000000000000000000000000000000000010aa"
      holder: "0x00000000000000000000000000000000000000f1"
      amount: "-5"
`,
		"bad spender": `
genesis:
  approvals:
    - token: "0x00000000000000000000000000000000000010aa"
      owner: "0x00000000000000000000000000000000000000f1"
      spender: "treasury"
      amount: "10"
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "domain.yaml", content)
			if _, err := LoadDefinitions(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
