package testutil

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"wedding-ops/internal/storage"
)

// ErrInjected is returned by FaultyStore for writes selected to fail
var ErrInjected = errors.New("injected store failure")

func fmtID(prefix string, n uint64) string {
	return prefix + "-" + strconv.FormatUint(n, 10)
}

// NewRecords returns typed records over a fresh in-memory store
func NewRecords(tb testing.TB) (*storage.Records, storage.Store) {
	tb.Helper()
	s, err := storage.NewFileStore("")
	if err != nil {
		tb.Fatalf("failed to create memory store: %v", err)
	}
	return storage.NewRecords(s), s
}

// FaultyStore wraps a Store and fails writes matched by FailWrite.
type FaultyStore struct {
	storage.Store

	mu        sync.Mutex
	failWrite func(c storage.Collection, key string, fields map[string]any) bool
	failures  int
}

// NewFaultyStore wraps inner; failWrite is consulted for every Set and Update.
// Set calls pass nil fields.
func NewFaultyStore(inner storage.Store, failWrite func(c storage.Collection, key string, fields map[string]any) bool) *FaultyStore {
	return &FaultyStore{Store: inner, failWrite: failWrite}
}

// Failures reports how many writes were rejected
func (f *FaultyStore) Failures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures
}

func (f *FaultyStore) shouldFail(c storage.Collection, key string, fields map[string]any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite != nil && f.failWrite(c, key, fields) {
		f.failures++
		return true
	}
	return false
}

// Set fails when selected, otherwise delegates
func (f *FaultyStore) Set(ctx context.Context, c storage.Collection, key string, data []byte) error {
	if f.shouldFail(c, key, nil) {
		return fmt.Errorf("set %s/%s: %w", c, key, ErrInjected)
	}
	return f.Store.Set(ctx, c, key, data)
}

// Update fails when selected, otherwise delegates
func (f *FaultyStore) Update(ctx context.Context, c storage.Collection, key string, fields map[string]any) error {
	if f.shouldFail(c, key, fields) {
		return fmt.Errorf("update %s/%s: %w", c, key, ErrInjected)
	}
	return f.Store.Update(ctx, c, key, fields)
}
