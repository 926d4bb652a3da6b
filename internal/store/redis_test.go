package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/leejennwah/compliance-queue/internal/config"
)

func TestNone(t *testing.T) {
	var p Provider = None
	if p() != nil {
		t.Error("expected nil handle")
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(config.Redis{
		URL:         "redis://localhost:6379/3",
		ReadTimeout: 250 * time.Millisecond,
		PoolSize:    7,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Close()

	opts := c.Options()
	if opts.DB != 3 {
		t.Errorf("expected db 3, got %d", opts.DB)
	}
	if opts.ReadTimeout != 250*time.Millisecond {
		t.Errorf("expected read timeout 250ms, got %s", opts.ReadTimeout)
	}
	if opts.PoolSize != 7 {
		t.Errorf("expected pool size 7, got %d", opts.PoolSize)
	}
}

func TestNewClient_Errors(t *testing.T) {
	if _, err := NewClient(config.Redis{}); err == nil {
		t.Error("expected error for empty url")
	}
	if _, err := NewClient(config.Redis{URL: "http://nope"}); err == nil {
		t.Error("expected error for invalid scheme")
	}
}

func TestLazy_Unconfigured(t *testing.T) {
	p := Lazy(config.Redis{}, zap.NewNop())
	if p() != nil {
		t.Error("expected nil handle without url")
	}
	if p() != nil {
		t.Error("expected nil handle on repeated calls")
	}
}

func TestLazy_InvalidURL(t *testing.T) {
	p := Lazy(config.Redis{URL: "::not a url::"}, zap.NewNop())
	if p() != nil {
		t.Error("expected nil handle for invalid url")
	}
}

func TestLazy_SharesClient(t *testing.T) {
	mr := miniredis.RunT(t)
	p := Lazy(config.Redis{URL: "redis://" + mr.Addr()}, zap.NewNop())

	first := p()
	if first == nil {
		t.Fatal("expected a handle")
	}
	if second := p(); second != first {
		t.Error("expected the same client on every call")
	}

	if err := first.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := mr.Get("k"); got != "v" {
		t.Errorf("expected v, got %q", got)
	}
}
