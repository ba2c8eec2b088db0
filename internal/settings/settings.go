// Package settings stores per-user settings records
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/totalrecall/internal/store"
	"github.com/totalrecall/pkg/models"
)

var (
	ErrNotFound      = errors.New("user settings not found")
	ErrMissingUserID = errors.New("userId is required")
)

// Repository reads and writes settings records keyed by user id
type Repository struct {
	table store.Table
	now   func() time.Time
}

// NewRepository creates a settings repository over table
func NewRepository(table store.Table) *Repository {
	return &Repository{table: table, now: time.Now}
}

// Get returns the settings of userID, or ErrNotFound
func (r *Repository) Get(ctx context.Context, userID string) (*models.Settings, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUserID
	}
	data, err := r.table.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get settings for %s: %w", userID, err)
	}
	var rec models.Settings
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode settings for %s: %w", userID, err)
	}
	return &rec, nil
}

// Upsert replaces the settings of userID, creating the record when there is
// none. created reports which of the two happened.
func (r *Repository) Upsert(ctx context.Context, userID string, values map[string]interface{}) (*models.Settings, bool, error) {
	existing, err := r.Get(ctx, userID)
	created := errors.Is(err, ErrNotFound)
	if err != nil && !created {
		return nil, false, err
	}

	now := r.now().UTC()
	rec := &models.Settings{UserID: userID, Settings: values, CreatedAt: now, UpdatedAt: now}
	if rec.Settings == nil {
		rec.Settings = map[string]interface{}{}
	}
	if !created {
		rec.CreatedAt = existing.CreatedAt
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := r.table.Put(ctx, userID, data); err != nil {
		return nil, false, fmt.Errorf("failed to save settings for %s: %w", userID, err)
	}

	log.Debug().Str("user_id", userID).Bool("created", created).Msg("User settings saved")
	return rec, created, nil
}
