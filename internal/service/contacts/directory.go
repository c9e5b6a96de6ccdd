package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/paeltech/savannaFx-sub000/internal/domain/errs"
	drepo "github.com/paeltech/savannaFx-sub000/internal/domain/repository"
	"github.com/paeltech/savannaFx-sub000/pkg/cache"
)

const keyPrefix = "contact:"

// Directory keeps each subscriber's gateway address in the cache. A user
// without an entry is addressed by user id.
type Directory struct {
	cache cache.Store
}

var _ drepo.ContactDirectory = (*Directory)(nil)

func New(c cache.Store) *Directory {
	return &Directory{cache: c}
}

func (d *Directory) Target(ctx context.Context, userID string) (string, error) {
	var target string
	err := d.cache.Get(ctx, keyPrefix+userID, &target)
	if errors.Is(err, cache.ErrCacheMiss) {
		return userID, nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup contact %s: %w", userID, err)
	}
	return target, nil
}

// Register stores the address the gateway should deliver to. Entries do not expire.
func (d *Directory) Register(ctx context.Context, userID, target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return errs.Validation("target", "target is required")
	}
	if err := d.cache.Set(ctx, keyPrefix+userID, target, 0); err != nil {
		return fmt.Errorf("store contact %s: %w", userID, err)
	}
	return nil
}
