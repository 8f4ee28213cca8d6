package service

import (
	"context"
	"time"

	"github.com/studycompanion/studycompanion/internal/model"
)

const (
	defaultUsageDays = 7
	maxUsageDays     = 90
)

// UsageStore reads aggregated provider usage.
type UsageStore interface {
	ListDailyUsage(ctx context.Context, userID string, from, to time.Time) ([]*model.DailyUsage, error)
}

// Usage reports a user's provider consumption.
type Usage struct {
	store UsageStore
	now   func() time.Time
}

// NewUsage creates a Usage service.
func NewUsage(store UsageStore) *Usage {
	return &Usage{store: store, now: time.Now}
}

// Daily returns per-day, per-feature usage for the last days days, today included.
// days == 0 means the default week.
func (u *Usage) Daily(ctx context.Context, userID string, days int) ([]*model.DailyUsage, error) {
	if days == 0 {
		days = defaultUsageDays
	}
	if days < 1 || days > maxUsageDays {
		return nil, ErrInvalidDays
	}

	today := u.now().UTC().Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -(days - 1))
	return u.store.ListDailyUsage(ctx, userID, from, today)
}
