// Package conversations persists conversation records in a key-value table
// and implements the read-modify-write edits on them.
package conversations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/totalrecall/internal/store"
	"github.com/totalrecall/pkg/models"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 1000
)

var (
	ErrNotFound    = errors.New("conversation not found")
	ErrTagNotFound = errors.New("tag not found")
)

// Repository is the conversation store. Edits are unconditional
// read-modify-write cycles: concurrent edits of one conversation race and
// the last write wins.
type Repository struct {
	table store.Table
	codec Codec
	now   func() time.Time
	newID func() string
}

// Option configures a Repository
type Option func(*Repository)

// WithCompression gzip-compresses records on write
func WithCompression(enabled bool) Option {
	return func(r *Repository) { r.codec.Compress = enabled }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithIDGenerator overrides the UUID generator
func WithIDGenerator(gen func() string) Option {
	return func(r *Repository) { r.newID = gen }
}

func NewRepository(table store.Table, opts ...Option) *Repository {
	r := &Repository{
		table: table,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Save writes the full record, assigning an id first if it has none
func (r *Repository) Save(ctx context.Context, conv *models.Conversation) (string, error) {
	if conv.ID == "" {
		conv.ID = r.newID()
	}
	now := r.now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
	if conv.Tags == nil {
		conv.Tags = []string{}
	}

	data, err := r.codec.Encode(conv)
	if err != nil {
		return "", err
	}
	if err := r.table.Put(ctx, conv.ID, data); err != nil {
		return "", fmt.Errorf("failed to save conversation %s: %w", conv.ID, err)
	}
	return conv.ID, nil
}

// Get returns ErrNotFound when nothing is stored under id
func (r *Repository) Get(ctx context.Context, id string) (*models.Conversation, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	data, err := r.table.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	conv, err := r.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", id, err)
	}
	if conv.ID == "" {
		conv.ID = id
	}
	return conv, nil
}

// List returns up to limit conversations from a single unordered scan.
// Records that fail to decode are skipped.
func (r *Repository) List(ctx context.Context, limit int) ([]*models.Conversation, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	items, err := r.table.Scan(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	out := make([]*models.Conversation, 0, len(items))
	for _, it := range items {
		conv, err := r.codec.Decode(it.Value)
		if err != nil {
			log.Warn().Err(err).Str("conversation_id", it.Key).Msg("Skipping undecodable conversation")
			continue
		}
		if conv.ID == "" {
			conv.ID = it.Key
		}
		out = append(out, conv)
	}
	return out, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	if err := r.table.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	return nil
}

// update loads id, applies edit and writes the result back
func (r *Repository) update(ctx context.Context, id string, edit func(*models.Conversation) error) (*models.Conversation, error) {
	conv, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := edit(conv); err != nil {
		return nil, err
	}
	if _, err := r.Save(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// AppendTag pushes tag onto the tag list. Duplicates are kept.
func (r *Repository) AppendTag(ctx context.Context, id, tag string) (*models.Conversation, error) {
	return r.update(ctx, id, func(c *models.Conversation) error {
		c.Tags = append(c.Tags, tag)
		return nil
	})
}

// EditTag replaces every occurrence of oldTag with newTag
func (r *Repository) EditTag(ctx context.Context, id, oldTag, newTag string) (*models.Conversation, error) {
	return r.update(ctx, id, func(c *models.Conversation) error {
		found := false
		for i, t := range c.Tags {
			if t == oldTag {
				c.Tags[i] = newTag
				found = true
			}
		}
		if !found {
			return ErrTagNotFound
		}
		return nil
	})
}

// DeleteTag removes every occurrence of tag. Removing an absent tag is not an error.
func (r *Repository) DeleteTag(ctx context.Context, id, tag string) (*models.Conversation, error) {
	return r.update(ctx, id, func(c *models.Conversation) error {
		kept := make([]string, 0, len(c.Tags))
		for _, t := range c.Tags {
			if t != tag {
				kept = append(kept, t)
			}
		}
		c.Tags = kept
		return nil
	})
}

// ReplaceTags overwrites the whole tag list
func (r *Repository) ReplaceTags(ctx context.Context, id string, tags []string) (*models.Conversation, error) {
	return r.update(ctx, id, func(c *models.Conversation) error {
		c.Tags = append([]string{}, tags...)
		return nil
	})
}

func (r *Repository) Rename(ctx context.Context, id, name string) (*models.Conversation, error) {
	return r.update(ctx, id, func(c *models.Conversation) error {
		c.Name = name
		return nil
	})
}

func (r *Repository) AppendMessage(ctx context.Context, id string, msg models.Message) (*models.Conversation, error) {
	return r.update(ctx, id, func(c *models.Conversation) error {
		c.Messages = append(c.Messages, msg)
		return nil
	})
}
