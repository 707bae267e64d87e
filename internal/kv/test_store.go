package kv

import (
	"context"
	"sync"
)

// TestStore is an in-memory Store used in tests.
type TestStore struct {
	mutex  sync.Mutex
	values map[string][]byte
	// SetCalls counts Set invocations per key, so tests can assert
	// that every mutation writes the collection through
	SetCalls map[string]int
}

func NewTestStore() *TestStore {
	return &TestStore{
		values:   make(map[string][]byte),
		SetCalls: make(map[string]int),
	}
}

func (ts *TestStore) Get(_ context.Context, key string) ([]byte, error) {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	value, ok := ts.values[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return value, nil
}

func (ts *TestStore) Set(_ context.Context, key string, value []byte) error {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	ts.values[key] = value
	ts.SetCalls[key]++
	return nil
}

func (ts *TestStore) Delete(_ context.Context, key string) error {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	delete(ts.values, key)
	return nil
}
