// Package store provides the key-value tables that hold serialized records.
// Every backend exposes the same get/put/delete/scan surface keyed by a
// string identifier; callers own the value encoding.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no item is stored under a key
	ErrNotFound = errors.New("item not found")
	// ErrInvalidKey is returned for empty keys
	ErrInvalidKey = errors.New("invalid key")
)

// Item is one key/value pair returned by Scan
type Item struct {
	Key   string
	Value []byte
}

// Table is a single key-value table
type Table interface {
	// Get returns the value stored at key, or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// Put replaces the value stored at key
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes the item at key, or returns ErrNotFound if there is none
	Delete(ctx context.Context, key string) error
	// Scan returns at most limit items in no particular order
	Scan(ctx context.Context, limit int) ([]Item, error)
}

// Observer receives the outcome of every table operation
type Observer interface {
	ObserveStoreOp(table, op string, duration time.Duration, err error)
}

// Instrument wraps a table so each operation is reported to obs
func Instrument(name string, t Table, obs Observer) Table {
	if obs == nil {
		return t
	}
	return &instrumented{name: name, next: t, obs: obs}
}

type instrumented struct {
	name string
	next Table
	obs  Observer
}

func (i *instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	v, err := i.next.Get(ctx, key)
	i.obs.ObserveStoreOp(i.name, "get", time.Since(start), err)
	return v, err
}

func (i *instrumented) Put(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := i.next.Put(ctx, key, value)
	i.obs.ObserveStoreOp(i.name, "put", time.Since(start), err)
	return err
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := i.next.Delete(ctx, key)
	i.obs.ObserveStoreOp(i.name, "delete", time.Since(start), err)
	return err
}

func (i *instrumented) Scan(ctx context.Context, limit int) ([]Item, error) {
	start := time.Now()
	items, err := i.next.Scan(ctx, limit)
	i.obs.ObserveStoreOp(i.name, "scan", time.Since(start), err)
	return items, err
}

func checkKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}

func checkLimit(limit int) error {
	if limit <= 0 {
		return fmt.Errorf("scan limit must be positive, got %d", limit)
	}
	return nil
}
