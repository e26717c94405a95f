package promo

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// Validator checks whether a code may be used for a cart and records its
// redemption.
type Validator interface {
	Validate(ctx context.Context, code string, itemCount int) (*Rule, error)
	Redeem(ctx context.Context, code string) error
}

// RepoValidator implements Validator on top of a Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

var _ Validator = (*RepoValidator)(nil)

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up the rule for code and checks its time window, usage
// limit and minimum item count. It does not consume a use.
func (v *RepoValidator) Validate(ctx context.Context, code string, itemCount int) (*Rule, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidCode
	}

	rule, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCode) {
			return nil, ErrInvalidCode
		}
		return nil, errors.Wrap(err, "lookup promo code")
	}

	now := v.now()
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return nil, ErrExpired
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return nil, ErrExpired
	}
	if rule.MaxUses > 0 && rule.Uses >= rule.MaxUses {
		return nil, ErrUsageLimitReached
	}
	if rule.MinItems > 0 && itemCount < rule.MinItems {
		return nil, ErrInvalidCode
	}
	if _, err := rule.Discount(); err != nil {
		return nil, err
	}

	return rule, nil
}

// Redeem consumes one use of code. Call it inside the order transaction so a
// failed checkout does not burn a use.
func (v *RepoValidator) Redeem(ctx context.Context, code string) error {
	if err := v.repo.IncrementUses(ctx, code); err != nil {
		if errors.Is(err, ErrUsageLimitReached) {
			return ErrUsageLimitReached
		}
		return errors.Wrap(err, "increment promo uses")
	}
	return nil
}
