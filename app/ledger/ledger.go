// Package ledger builds and reads the append-only usage log.
package ledger

import (
	"context"
	"time"

	"example/healing-api/app/models"
	"example/healing-api/app/store"

	"github.com/google/uuid"
)

const (
	DefaultHistoryDays = 30
	MaxHistoryDays     = 365
)

// NewEntry stamps a ledger entry for one metered action.
func NewEntry(userID string, feature models.Feature, item string, now time.Time) models.UsageLogEntry {
	return models.UsageLogEntry{
		ID:            uuid.NewString(),
		UserID:        userID,
		Action:        feature,
		ProcessedItem: item,
		CreatedAt:     now.UTC(),
	}
}

// ClampDays maps a requested lookback onto [1, MaxHistoryDays]; zero or less picks def.
func ClampDays(days, def int) int {
	if def <= 0 {
		def = DefaultHistoryDays
	}
	if days <= 0 {
		days = def
	}
	if days > MaxHistoryDays {
		days = MaxHistoryDays
	}
	return days
}

type Ledger struct {
	usage       store.Usage
	defaultDays int
	now         func() time.Time
}

func New(usage store.Usage, defaultDays int) *Ledger {
	return &Ledger{usage: usage, defaultDays: ClampDays(defaultDays, DefaultHistoryDays), now: time.Now}
}

// History returns the user's entries within the window, newest first.
func (l *Ledger) History(ctx context.Context, userID string, days int) ([]models.UsageLogEntry, error) {
	days = ClampDays(days, l.defaultDays)
	since := l.now().UTC().AddDate(0, 0, -days)
	return l.usage.History(ctx, userID, since)
}

type FeatureSummary struct {
	Feature  models.Feature `json:"feature"`
	Count    int            `json:"count"`
	LastUsed *time.Time     `json:"lastUsed,omitempty"`
}

// Summary groups entries per feature in models.Features order.
func Summary(entries []models.UsageLogEntry) []FeatureSummary {
	byFeature := make(map[models.Feature]*FeatureSummary, len(models.Features))
	out := make([]FeatureSummary, len(models.Features))
	for i, f := range models.Features {
		out[i] = FeatureSummary{Feature: f}
		byFeature[f] = &out[i]
	}
	for _, e := range entries {
		fs, ok := byFeature[e.Action]
		if !ok {
			continue
		}
		fs.Count++
		if fs.LastUsed == nil || e.CreatedAt.After(*fs.LastUsed) {
			t := e.CreatedAt
			fs.LastUsed = &t
		}
	}
	return out
}
