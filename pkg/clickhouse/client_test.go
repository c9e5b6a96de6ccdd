package clickhouse

import (
	"testing"
	"time"
)

func TestOptions(t *testing.T) {
	cfg := defaultConfig()
	for _, opt := range []ClientOption{
		WithHost("ch.internal"),
		WithPort(0),
		WithCredentials("", "secret"),
		WithAsyncInsert(true, false),
		WithTimeouts(0, 30*time.Second),
		WithPool(0, 2),
	} {
		opt(cfg)
	}

	o := options(cfg)
	if len(o.Addr) != 1 || o.Addr[0] != "ch.internal:9000" {
		t.Fatalf("addr = %v", o.Addr)
	}
	if o.Auth.Username != "default" || o.Auth.Password != "secret" || o.Auth.Database != "default" {
		t.Fatalf("auth = %+v", o.Auth)
	}
	if o.Settings["async_insert"] != 1 || o.Settings["wait_for_async_insert"] != 0 {
		t.Fatalf("settings = %v", o.Settings)
	}
	if o.DialTimeout != 5*time.Second || o.ReadTimeout != 30*time.Second {
		t.Fatalf("timeouts = %s/%s", o.DialTimeout, o.ReadTimeout)
	}
	if cfg.MaxOpenConns != 10 || cfg.MaxIdleConns != 2 {
		t.Fatalf("pool = %d/%d", cfg.MaxOpenConns, cfg.MaxIdleConns)
	}
}

func TestNewClient_RequiresHost(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Fatalf("expected error without host")
	}
}
