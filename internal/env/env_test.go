package env

import (
	"testing"
	"time"
)

func TestRedisOptionsURL(t *testing.T) {
	opts := RedisOptions("redis://:secret@localhost:6380/2")
	if opts.Addr != "localhost:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestRedisOptionsAzureStyle(t *testing.T) {
	opts := RedisOptions("cache.example.net:6380,password=pw,ssl=True,abortConnect=False")
	if opts.Addr != "cache.example.net:6380" || opts.Password != "pw" {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.TLSConfig == nil {
		t.Fatal("expected TLS to be enabled")
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("BOARD_CACHE_TTL", "")
	if d, err := Duration("BOARD_CACHE_TTL", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("expected default, got %v %v", d, err)
	}
	t.Setenv("BOARD_CACHE_TTL", "90s")
	if d, err := Duration("BOARD_CACHE_TTL", time.Minute); err != nil || d != 90*time.Second {
		t.Fatalf("expected 90s, got %v %v", d, err)
	}
	t.Setenv("BOARD_CACHE_TTL", "-1s")
	if _, err := Duration("BOARD_CACHE_TTL", time.Minute); err == nil {
		t.Fatal("expected negative duration to fail")
	}
}

func TestInt(t *testing.T) {
	t.Setenv("BOARD_API_PORT", "abc")
	if _, err := Int("BOARD_API_PORT", 8080); err == nil {
		t.Fatal("expected parse error")
	}
	t.Setenv("BOARD_API_PORT", "9090")
	if n, err := Int("BOARD_API_PORT", 8080); err != nil || n != 9090 {
		t.Fatalf("expected 9090, got %d %v", n, err)
	}
}
