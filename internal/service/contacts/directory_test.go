package contacts

import (
	"context"
	"errors"
	"testing"

	"github.com/paeltech/savannaFx-sub000/internal/domain/errs"
	"github.com/paeltech/savannaFx-sub000/pkg/cache"
)

func TestDirectory(t *testing.T) {
	d := New(cache.NewMemoryCache())
	ctx := context.Background()

	target, err := d.Target(ctx, "user-1")
	if err != nil || target != "user-1" {
		t.Fatalf("unregistered target = %q, %v", target, err)
	}
	if err := d.Register(ctx, "user-1", "  @trader_one "); err != nil {
		t.Fatalf("register: %v", err)
	}
	target, _ = d.Target(ctx, "user-1")
	if target != "@trader_one" {
		t.Fatalf("target = %q", target)
	}
	if err := d.Register(ctx, "user-1", " "); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("blank target err = %v", err)
	}
}
