package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: memory
pricing:
  - type: monthly
    price: "49.00"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != 8080 {
		t.Fatalf("port = %d", c.Server.Port)
	}
	if c.Dispatch.Mode != "sync" || c.Dispatch.SendTimeout != 10*time.Second {
		t.Fatalf("dispatch defaults not applied: %+v", c.Dispatch)
	}
	if c.Allocator.MaxMembers != 200 {
		t.Fatalf("max members = %d", c.Allocator.MaxMembers)
	}
	if c.Scheduler.RefreshSpec != "0 5 0 1 * *" {
		t.Fatalf("refresh spec = %q", c.Scheduler.RefreshSpec)
	}
	if len(c.Pricing) != 1 || c.Pricing[0].Currency != "USD" {
		t.Fatalf("pricing seed = %+v", c.Pricing)
	}
}

func TestLoadRejectsPostgresWithoutDSN(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: postgres\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestQueueModeNeedsRedis(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: memory\ndispatch:\n  mode: queue\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: postgres\n")
	t.Setenv("DATABASE_DSN", "postgres://env")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("GATEWAY_URL", "http://gw")

	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Postgres.DSN != "postgres://env" {
		t.Fatalf("dsn = %q", c.Postgres.DSN)
	}
	if !c.Kafka.Enabled || len(c.Kafka.Brokers) != 2 {
		t.Fatalf("kafka = %+v", c.Kafka)
	}
	if c.Gateway.BaseURL != "http://gw" {
		t.Fatalf("gateway = %q", c.Gateway.BaseURL)
	}
}

func TestNodeIDRange(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: memory\nnode_id: 1024\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected node_id out of range error")
	}

	path = writeConfig(t, "storage:\n  driver: memory\nnode_id: 7\n")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.NodeID != 7 {
		t.Fatalf("node id = %d", c.NodeID)
	}
}

func TestNodeIDFromEnv(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: memory\nnode_id: 1\n")
	t.Setenv("NODE_ID", "42")
	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.NodeID != 42 {
		t.Fatalf("node id = %d, want 42", c.NodeID)
	}

	t.Setenv("NODE_ID", "abc")
	if _, err := LoadWithEnv(path); err == nil {
		t.Fatalf("expected parse error for NODE_ID")
	}
}
